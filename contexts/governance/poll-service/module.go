package pollservice

import (
	"log/slog"
	"time"

	httpadapter "strata/contexts/governance/poll-service/adapters/http"
	"strata/contexts/governance/poll-service/adapters/memory"
	application "strata/contexts/governance/poll-service/application"
	"strata/contexts/governance/poll-service/application/commands"
	"strata/contexts/governance/poll-service/application/queries"
	"strata/contexts/governance/poll-service/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Polls          ports.PollRepository
	Ballots        ports.BallotRepository
	Roster         ports.MembershipRoster
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	reconciler := application.PollReconciler{
		Polls:  deps.Polls,
		Outbox: deps.Outbox,
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	pollUseCase := commands.PollUseCase{
		Polls:          deps.Polls,
		Idempotency:    deps.Idempotency,
		Outbox:         deps.Outbox,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		Reconciler:     reconciler,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	ballotUseCase := commands.BallotUseCase{
		Polls:      deps.Polls,
		Ballots:    deps.Ballots,
		Roster:     deps.Roster,
		Outbox:     deps.Outbox,
		Clock:      deps.Clock,
		IDGen:      deps.IDGen,
		Reconciler: reconciler,
		Logger:     deps.Logger,
	}
	lookupUseCase := queries.PollLookupUseCase{
		Polls:      deps.Polls,
		Clock:      deps.Clock,
		Reconciler: reconciler,
	}
	tallyUseCase := queries.TallyUseCase{
		Polls:      deps.Polls,
		Ballots:    deps.Ballots,
		Roster:     deps.Roster,
		Clock:      deps.Clock,
		Reconciler: reconciler,
		Logger:     deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Polls:   pollUseCase,
			Ballots: ballotUseCase,
			Lookup:  lookupUseCase,
			Tallies: tallyUseCase,
			Logger:  deps.Logger,
		},
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Polls:          store,
		Ballots:        store,
		Roster:         store,
		Idempotency:    store,
		Outbox:         store,
		Clock:          store,
		IDGen:          store,
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
