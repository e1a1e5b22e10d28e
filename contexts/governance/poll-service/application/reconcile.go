package application

import (
	"context"
	"log/slog"
	"time"

	"strata/contexts/governance/poll-service/domain/entities"
	"strata/contexts/governance/poll-service/ports"
)

// PollReconciler applies the pure lifecycle function at every read and write
// entry point and persists the corrected status so subsequent reads by other
// callers stay consistent. There is no background scheduler; this is the
// compute-on-read substitute for one.
type PollReconciler struct {
	Polls  ports.PollRepository
	Outbox ports.OutboxWriter
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

// Resolve loads a poll and reconciles its status against now.
func (r PollReconciler) Resolve(ctx context.Context, pollID string, now time.Time) (entities.Poll, error) {
	poll, err := r.Polls.GetPoll(ctx, pollID)
	if err != nil {
		return entities.Poll{}, err
	}
	return r.Apply(ctx, poll, now)
}

// Apply reconciles an already-loaded poll. The status correction is persisted
// best-effort: the transition is a pure function of time, so last-writer-wins
// on the stored status is acceptable, and a persistence failure still returns
// the corrected value to the caller.
func (r PollReconciler) Apply(ctx context.Context, poll entities.Poll, now time.Time) (entities.Poll, error) {
	logger := ResolveLogger(r.Logger)
	reconciled, changed := entities.ReconcileStatus(poll, now)
	if !changed {
		return poll, nil
	}
	reconciled.UpdatedAt = now.UTC()

	if err := r.Polls.SavePollStatus(ctx, reconciled); err != nil {
		logger.Warn("poll status correction persist failed",
			"event", "governance_reconcile_persist_failed",
			"module", "governance/poll-service",
			"layer", "application",
			"poll_id", reconciled.PollID,
			"from_status", string(poll.Status),
			"to_status", string(reconciled.Status),
			"error", err.Error(),
		)
		return reconciled, nil
	}

	eventType := EventPollOpened
	if reconciled.Status == entities.PollStatusClosed {
		eventType = EventPollClosed
	}
	if err := r.appendEvent(ctx, eventType, reconciled, now, map[string]any{
		"trigger": "clock",
	}); err != nil {
		logger.Warn("poll lifecycle event append failed",
			"event", "governance_reconcile_event_failed",
			"module", "governance/poll-service",
			"layer", "application",
			"poll_id", reconciled.PollID,
			"event_type", eventType,
			"error", err.Error(),
		)
	}

	logger.Info("poll status reconciled",
		"event", "governance_poll_reconciled",
		"module", "governance/poll-service",
		"layer", "application",
		"poll_id", reconciled.PollID,
		"from_status", string(poll.Status),
		"to_status", string(reconciled.Status),
	)
	return reconciled, nil
}

func (r PollReconciler) appendEvent(
	ctx context.Context,
	eventType string,
	poll entities.Poll,
	occurredAt time.Time,
	metadata map[string]any,
) error {
	// Outbox is optional for pure read/test wiring, so nil is treated as no-op.
	if r.Outbox == nil {
		return nil
	}
	eventID, err := r.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data := map[string]any{
		"poll_id":      poll.PollID,
		"community_id": poll.CommunityID,
		"status":       string(poll.Status),
		"occurred_at":  occurredAt.UTC().Format(time.RFC3339),
	}
	for key, value := range metadata {
		data[key] = value
	}
	envelope, err := NewGovernanceEnvelope(eventID, eventType, poll.PollID, occurredAt, data)
	if err != nil {
		return err
	}
	return r.Outbox.AppendOutbox(ctx, envelope)
}
