package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	application "strata/contexts/governance/poll-service/application"
	"strata/contexts/governance/poll-service/domain/entities"
	domainerrors "strata/contexts/governance/poll-service/domain/errors"
	"strata/contexts/governance/poll-service/ports"
)

// CreatePollCommand is the write-model input for poll creation. InitialStatus
// is the manager's choice between draft and scheduled; empty means draft.
type CreatePollCommand struct {
	ManagerID         string
	IdempotencyKey    string
	CommunityID       string
	Title             string
	Description       string
	Kind              entities.PollKind
	OpensAt           time.Time
	ClosesAt          time.Time
	MinimumQuorum     int
	ResultVisibility  entities.ResultVisibility
	AllowBallotChange bool
	InitialStatus     entities.PollStatus
	Options           []string
}

// CreatePollResult carries the persisted poll plus a replay marker mapped to
// API semantics by the transport layer.
type CreatePollResult struct {
	Poll     entities.Poll
	Options  []entities.Option
	Replayed bool
}

// TransitionCommand requests a manager-issued status change
// (publish/cancel/force-open/force-close).
type TransitionCommand struct {
	PollID    string
	ManagerID string
}

// PollUseCase orchestrates registry and lifecycle commands: validated atomic
// creation, the publish edge, manager overrides, and cancellation.
type PollUseCase struct {
	Polls          ports.PollRepository
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	Reconciler     application.PollReconciler
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// CreatePoll validates the full input, reporting every violated field at once,
// and persists the poll with its options as one atomic unit. Replay-safe via
// idempotency key + request hash validation.
func (uc PollUseCase) CreatePoll(ctx context.Context, cmd CreatePollCommand) (CreatePollResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("poll create processing started",
		"event", "governance_poll_create_started",
		"module", "governance/poll-service",
		"layer", "application",
		"manager_id", strings.TrimSpace(cmd.ManagerID),
		"community_id", strings.TrimSpace(cmd.CommunityID),
	)

	if err := validateCreatePoll(cmd); err != nil {
		logger.Warn("poll create validation failed",
			"event", "governance_poll_create_validation_failed",
			"module", "governance/poll-service",
			"layer", "application",
			"manager_id", strings.TrimSpace(cmd.ManagerID),
			"community_id", strings.TrimSpace(cmd.CommunityID),
			"error", err.Error(),
		)
		return CreatePollResult{}, err
	}
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return CreatePollResult{}, domainerrors.ErrIdempotencyKeyRequired
	}

	now := uc.now()
	requestHash := hashCreatePollCommand(cmd)
	if record, found, err := uc.Idempotency.Get(ctx, cmd.IdempotencyKey, now); err != nil {
		return CreatePollResult{}, err
	} else if found {
		if record.RequestHash != requestHash {
			return CreatePollResult{}, domainerrors.ErrIdempotencyConflict
		}
		poll, err := uc.Polls.GetPoll(ctx, record.PollID)
		if err != nil {
			return CreatePollResult{}, err
		}
		options, err := uc.Polls.ListOptions(ctx, record.PollID)
		if err != nil {
			return CreatePollResult{}, err
		}
		logger.Info("poll create replayed",
			"event", "governance_poll_create_replayed",
			"module", "governance/poll-service",
			"layer", "application",
			"poll_id", poll.PollID,
		)
		return CreatePollResult{Poll: poll, Options: options, Replayed: true}, nil
	}

	pollID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CreatePollResult{}, err
	}
	status := cmd.InitialStatus
	if status == "" {
		status = entities.PollStatusDraft
	}
	poll := entities.Poll{
		PollID:            pollID,
		CommunityID:       strings.TrimSpace(cmd.CommunityID),
		Title:             strings.TrimSpace(cmd.Title),
		Description:       strings.TrimSpace(cmd.Description),
		Kind:              cmd.Kind,
		OpensAt:           cmd.OpensAt.UTC(),
		ClosesAt:          cmd.ClosesAt.UTC(),
		MinimumQuorum:     cmd.MinimumQuorum,
		ResultVisibility:  cmd.ResultVisibility,
		AllowBallotChange: cmd.AllowBallotChange,
		Status:            status,
		CreatedBy:         strings.TrimSpace(cmd.ManagerID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	options := make([]entities.Option, 0, len(cmd.Options))
	for index, text := range cmd.Options {
		optionID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return CreatePollResult{}, err
		}
		options = append(options, entities.Option{
			OptionID:     optionID,
			PollID:       pollID,
			Text:         strings.TrimSpace(text),
			DisplayOrder: index + 1,
			CreatedAt:    now,
		})
	}

	if err := uc.Polls.CreatePoll(ctx, poll, options); err != nil {
		return CreatePollResult{}, err
	}
	if err := uc.appendPollEvent(ctx, application.EventPollCreated, poll, now, map[string]any{
		"option_count": len(options),
	}); err != nil {
		return CreatePollResult{}, err
	}
	if err := uc.Idempotency.Put(ctx, ports.IdempotencyRecord{
		Key:         strings.TrimSpace(cmd.IdempotencyKey),
		RequestHash: requestHash,
		PollID:      pollID,
		ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
	}); err != nil {
		return CreatePollResult{}, err
	}

	logger.Info("poll created",
		"event", "governance_poll_created",
		"module", "governance/poll-service",
		"layer", "application",
		"poll_id", poll.PollID,
		"community_id", poll.CommunityID,
		"status", string(poll.Status),
		"option_count", len(options),
	)
	return CreatePollResult{Poll: poll, Options: options}, nil
}

// PublishPoll moves a draft onto the schedule. Any other starting status is an
// illegal transition.
func (uc PollUseCase) PublishPoll(ctx context.Context, cmd TransitionCommand) (entities.Poll, error) {
	return uc.transition(ctx, cmd, "publish", func(poll *entities.Poll, now time.Time) (string, error) {
		if poll.Status != entities.PollStatusDraft {
			return "", domainerrors.ErrInvalidTransition
		}
		poll.Status = entities.PollStatusScheduled
		return application.EventPollPublished, nil
	})
}

// CancelPoll is the one non-monotonic transition; it is legal from draft,
// scheduled and open, and records the issuing manager.
func (uc PollUseCase) CancelPoll(ctx context.Context, cmd TransitionCommand) (entities.Poll, error) {
	return uc.transition(ctx, cmd, "cancel", func(poll *entities.Poll, now time.Time) (string, error) {
		if !poll.Cancellable() {
			return "", domainerrors.ErrInvalidTransition
		}
		poll.Status = entities.PollStatusCancelled
		poll.CancelledBy = strings.TrimSpace(cmd.ManagerID)
		return application.EventPollCancelled, nil
	})
}

// ForceOpen opens a draft or scheduled poll immediately, regardless of its
// opens-at timestamp.
func (uc PollUseCase) ForceOpen(ctx context.Context, cmd TransitionCommand) (entities.Poll, error) {
	return uc.transition(ctx, cmd, "force_open", func(poll *entities.Poll, now time.Time) (string, error) {
		if poll.Status != entities.PollStatusDraft && poll.Status != entities.PollStatusScheduled {
			return "", domainerrors.ErrInvalidTransition
		}
		poll.Status = entities.PollStatusOpen
		return application.EventPollOpened, nil
	})
}

// ForceClose closes an open poll immediately, freezing further ballots.
// ClosedBy marks the close as manager-issued so the clock never reopens it.
func (uc PollUseCase) ForceClose(ctx context.Context, cmd TransitionCommand) (entities.Poll, error) {
	return uc.transition(ctx, cmd, "force_close", func(poll *entities.Poll, now time.Time) (string, error) {
		if poll.Status != entities.PollStatusOpen {
			return "", domainerrors.ErrInvalidTransition
		}
		poll.Status = entities.PollStatusClosed
		poll.ClosedBy = strings.TrimSpace(cmd.ManagerID)
		return application.EventPollClosed, nil
	})
}

func (uc PollUseCase) transition(
	ctx context.Context,
	cmd TransitionCommand,
	action string,
	apply func(*entities.Poll, time.Time) (string, error),
) (entities.Poll, error) {
	logger := application.ResolveLogger(uc.Logger)
	if strings.TrimSpace(cmd.PollID) == "" || strings.TrimSpace(cmd.ManagerID) == "" {
		violations := &domainerrors.ValidationError{}
		if strings.TrimSpace(cmd.PollID) == "" {
			violations.Add("poll_id", "must not be empty")
		}
		if strings.TrimSpace(cmd.ManagerID) == "" {
			violations.Add("manager_id", "must not be empty")
		}
		return entities.Poll{}, violations
	}

	now := uc.now()
	// Reconcile first: a stale scheduled poll past its close time must fail the
	// transition check as closed, not slip through as scheduled.
	poll, err := uc.Reconciler.Resolve(ctx, strings.TrimSpace(cmd.PollID), now)
	if err != nil {
		return entities.Poll{}, err
	}
	fromStatus := poll.Status

	eventType, err := apply(&poll, now)
	if err != nil {
		logger.Warn("poll transition rejected",
			"event", "governance_poll_transition_rejected",
			"module", "governance/poll-service",
			"layer", "application",
			"poll_id", poll.PollID,
			"action", action,
			"status", string(fromStatus),
		)
		return entities.Poll{}, err
	}
	poll.UpdatedAt = now

	if err := uc.Polls.SavePollStatus(ctx, poll); err != nil {
		return entities.Poll{}, err
	}
	if err := uc.appendPollEvent(ctx, eventType, poll, now, map[string]any{
		"trigger":     "manager",
		"actioned_by": strings.TrimSpace(cmd.ManagerID),
	}); err != nil {
		return entities.Poll{}, err
	}

	logger.Info("poll transition applied",
		"event", "governance_poll_transition_applied",
		"module", "governance/poll-service",
		"layer", "application",
		"poll_id", poll.PollID,
		"action", action,
		"from_status", string(fromStatus),
		"to_status", string(poll.Status),
		"manager_id", strings.TrimSpace(cmd.ManagerID),
	)
	return poll, nil
}

func (uc PollUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc PollUseCase) resolveIdempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return uc.IdempotencyTTL
}

func (uc PollUseCase) appendPollEvent(
	ctx context.Context,
	eventType string,
	poll entities.Poll,
	occurredAt time.Time,
	metadata map[string]any,
) error {
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
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
	envelope, err := application.NewGovernanceEnvelope(eventID, eventType, poll.PollID, occurredAt, data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func validateCreatePoll(cmd CreatePollCommand) error {
	violations := &domainerrors.ValidationError{}
	if strings.TrimSpace(cmd.ManagerID) == "" {
		violations.Add("manager_id", "must not be empty")
	}
	if strings.TrimSpace(cmd.CommunityID) == "" {
		violations.Add("community_id", "must not be empty")
	}
	if strings.TrimSpace(cmd.Title) == "" {
		violations.Add("title", "must not be empty")
	}
	if strings.TrimSpace(cmd.Description) == "" {
		violations.Add("description", "must not be empty")
	}
	switch cmd.Kind {
	case entities.PollKindSingleChoice, entities.PollKindMultiChoice, entities.PollKindSecretBallot:
	default:
		violations.Add("kind", "must be single_choice, multi_choice or secret_ballot")
	}
	switch cmd.ResultVisibility {
	case entities.VisibilityAlwaysPublic, entities.VisibilityPublicAfterClose, entities.VisibilityPublicOnlyToVoter:
	default:
		violations.Add("result_visibility", "must be always_public, public_after_close or public_only_to_voter")
	}
	switch cmd.InitialStatus {
	case "", entities.PollStatusDraft, entities.PollStatusScheduled:
	default:
		violations.Add("initial_status", "must be draft or scheduled")
	}
	if cmd.OpensAt.IsZero() {
		violations.Add("opens_at", "must be set")
	}
	if cmd.ClosesAt.IsZero() {
		violations.Add("closes_at", "must be set")
	}
	if !cmd.OpensAt.IsZero() && !cmd.ClosesAt.IsZero() && !cmd.OpensAt.Before(cmd.ClosesAt) {
		violations.Add("closes_at", "must be after opens_at")
	}
	if cmd.MinimumQuorum < 0 || cmd.MinimumQuorum > 100 {
		violations.Add("minimum_quorum", "must be between 0 and 100")
	}

	distinct := make(map[string]struct{}, len(cmd.Options))
	for index, text := range cmd.Options {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			violations.Add("options["+strconv.Itoa(index)+"]", "must not be empty")
			continue
		}
		if _, seen := distinct[trimmed]; seen {
			violations.Add("options["+strconv.Itoa(index)+"]", "duplicates an earlier option")
			continue
		}
		distinct[trimmed] = struct{}{}
	}
	if len(distinct) < 2 {
		violations.Add("options", "at least two distinct non-empty options are required")
	}

	if violations.HasViolations() {
		return violations
	}
	return nil
}

func hashCreatePollCommand(cmd CreatePollCommand) string {
	payload := map[string]string{
		"manager_id":          strings.TrimSpace(cmd.ManagerID),
		"community_id":        strings.TrimSpace(cmd.CommunityID),
		"title":               strings.TrimSpace(cmd.Title),
		"description":         strings.TrimSpace(cmd.Description),
		"kind":                string(cmd.Kind),
		"opens_at":            cmd.OpensAt.UTC().Format(time.RFC3339Nano),
		"closes_at":           cmd.ClosesAt.UTC().Format(time.RFC3339Nano),
		"minimum_quorum":      strconv.Itoa(cmd.MinimumQuorum),
		"result_visibility":   string(cmd.ResultVisibility),
		"allow_ballot_change": strconv.FormatBool(cmd.AllowBallotChange),
		"initial_status":      string(cmd.InitialStatus),
		"options":             strings.Join(cmd.Options, "\x1f"),
		"op":                  "create_poll",
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
