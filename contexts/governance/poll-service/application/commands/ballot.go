package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "strata/contexts/governance/poll-service/application"
	"strata/contexts/governance/poll-service/domain/entities"
	domainerrors "strata/contexts/governance/poll-service/domain/errors"
	"strata/contexts/governance/poll-service/ports"
)

// CastBallotCommand is the write-model input for ballot casting. There is no
// idempotency key on purpose: a repeated cast with a different option is not a
// replay, and callers must surface failures instead of auto-retrying.
type CastBallotCommand struct {
	PollID   string
	VoterID  string
	OptionID string
}

// CastBallotResult returns the stored ballot and whether it replaced an
// earlier choice.
type CastBallotResult struct {
	Ballot    entities.Ballot
	WasUpdate bool
}

// BallotUseCase guards the one correctness property the subsystem exists to
// protect: at most one ballot per (poll, voter), enforced atomically in the
// repository rather than by read-then-write sequencing.
type BallotUseCase struct {
	Polls      ports.PollRepository
	Ballots    ports.BallotRepository
	Roster     ports.MembershipRoster
	Outbox     ports.OutboxWriter
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Reconciler application.PollReconciler
	Logger     *slog.Logger
}

// CastBallot re-resolves the poll status first so a stale stored status never
// admits a vote on a closed poll, then delegates uniqueness to the atomic
// repository cast.
func (uc BallotUseCase) CastBallot(ctx context.Context, cmd CastBallotCommand) (CastBallotResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := validateCastBallot(cmd); err != nil {
		logger.Warn("ballot cast validation failed",
			"event", "governance_ballot_cast_validation_failed",
			"module", "governance/poll-service",
			"layer", "application",
			"poll_id", strings.TrimSpace(cmd.PollID),
			"voter_id", strings.TrimSpace(cmd.VoterID),
		)
		return CastBallotResult{}, err
	}

	now := uc.now()
	pollID := strings.TrimSpace(cmd.PollID)
	voterID := strings.TrimSpace(cmd.VoterID)
	optionID := strings.TrimSpace(cmd.OptionID)

	poll, err := uc.Reconciler.Resolve(ctx, pollID, now)
	if err != nil && !isDomainLookupError(err) {
		// One retry on a transient storage failure is safe here: nothing has
		// been written yet and the uniqueness check has not been evaluated.
		poll, err = uc.Reconciler.Resolve(ctx, pollID, now)
	}
	if err != nil {
		return CastBallotResult{}, err
	}

	if poll.Status != entities.PollStatusOpen {
		logger.Warn("ballot cast rejected: poll not open",
			"event", "governance_ballot_cast_poll_not_open",
			"module", "governance/poll-service",
			"layer", "application",
			"poll_id", pollID,
			"voter_id", voterID,
			"status", string(poll.Status),
		)
		return CastBallotResult{}, domainerrors.ErrPollNotOpen
	}
	// A vote at exactly closes-at is accepted; one instant later is not. This
	// explicit bound holds even if the stored status were stale, independent of
	// the reconcile above. Force-opened polls may be voted before opens-at.
	if now.After(poll.ClosesAt) {
		return CastBallotResult{}, domainerrors.ErrPollNotOpen
	}

	member, err := uc.Roster.IsMember(ctx, poll.CommunityID, voterID)
	if err != nil {
		return CastBallotResult{}, err
	}
	if !member {
		return CastBallotResult{}, domainerrors.ErrForbidden
	}

	options, err := uc.Polls.ListOptions(ctx, pollID)
	if err != nil {
		return CastBallotResult{}, err
	}
	if !optionBelongsToPoll(options, optionID) {
		return CastBallotResult{}, domainerrors.ErrUnknownOption
	}

	ballotID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CastBallotResult{}, err
	}
	ballot := entities.Ballot{
		BallotID:  ballotID,
		PollID:    pollID,
		VoterID:   voterID,
		OptionID:  optionID,
		CastAt:    now,
		UpdatedAt: now,
	}
	stored, wasUpdate, err := uc.Ballots.CastBallot(ctx, ballot, poll.AllowBallotChange)
	if err != nil {
		if errors.Is(err, domainerrors.ErrDuplicateVote) {
			logger.Warn("ballot cast rejected: duplicate vote",
				"event", "governance_ballot_cast_duplicate",
				"module", "governance/poll-service",
				"layer", "application",
				"poll_id", pollID,
				"voter_id", voterID,
			)
		}
		return CastBallotResult{}, err
	}

	if err := uc.appendBallotEvent(ctx, poll, stored, now, wasUpdate); err != nil {
		return CastBallotResult{}, err
	}

	logger.Info("ballot cast",
		"event", "governance_ballot_cast",
		"module", "governance/poll-service",
		"layer", "application",
		"poll_id", pollID,
		"voter_id", voterID,
		"ballot_id", stored.BallotID,
		"was_update", wasUpdate,
	)
	return CastBallotResult{Ballot: stored, WasUpdate: wasUpdate}, nil
}

func (uc BallotUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc BallotUseCase) appendBallotEvent(
	ctx context.Context,
	poll entities.Poll,
	ballot entities.Ballot,
	occurredAt time.Time,
	wasUpdate bool,
) error {
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data := map[string]any{
		"poll_id":      ballot.PollID,
		"community_id": poll.CommunityID,
		"voter_id":     ballot.VoterID,
		"was_update":   wasUpdate,
		"occurred_at":  occurredAt.UTC().Format(time.RFC3339),
	}
	// The stored voter-option link exists for duplicate prevention only; for
	// secret ballots it is never surfaced, events included.
	if poll.Kind != entities.PollKindSecretBallot {
		data["option_id"] = ballot.OptionID
	}
	envelope, err := application.NewGovernanceEnvelope(
		eventID, application.EventBallotCast, ballot.PollID, occurredAt, data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func validateCastBallot(cmd CastBallotCommand) error {
	violations := &domainerrors.ValidationError{}
	if strings.TrimSpace(cmd.PollID) == "" {
		violations.Add("poll_id", "must not be empty")
	}
	if strings.TrimSpace(cmd.VoterID) == "" {
		violations.Add("voter_id", "must not be empty")
	}
	if strings.TrimSpace(cmd.OptionID) == "" {
		violations.Add("option_id", "must not be empty")
	}
	if violations.HasViolations() {
		return violations
	}
	return nil
}

func optionBelongsToPoll(options []entities.Option, optionID string) bool {
	for _, option := range options {
		if option.OptionID == optionID {
			return true
		}
	}
	return false
}

func isDomainLookupError(err error) bool {
	return errors.Is(err, domainerrors.ErrPollNotFound)
}
