package commands

import (
	"sync"
	"time"

	"strata/contexts/governance/poll-service/adapters/memory"
	application "strata/contexts/governance/poll-service/application"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type fixture struct {
	store  *memory.Store
	clock  *fakeClock
	polls  PollUseCase
	ballot BallotUseCase
}

func newFixture(now time.Time) *fixture {
	store := memory.NewStore()
	clock := &fakeClock{now: now}
	reconciler := application.PollReconciler{
		Polls:  store,
		Outbox: store,
		IDGen:  store,
	}
	return &fixture{
		store: store,
		clock: clock,
		polls: PollUseCase{
			Polls:          store,
			Idempotency:    store,
			Outbox:         store,
			Clock:          clock,
			IDGen:          store,
			Reconciler:     reconciler,
			IdempotencyTTL: 24 * time.Hour,
		},
		ballot: BallotUseCase{
			Polls:      store,
			Ballots:    store,
			Roster:     store,
			Outbox:     store,
			Clock:      clock,
			IDGen:      store,
			Reconciler: reconciler,
		},
	}
}
