package commands

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"strata/contexts/governance/poll-service/domain/entities"
	domainerrors "strata/contexts/governance/poll-service/domain/errors"
)

var testNow = time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

func validCreateCommand() CreatePollCommand {
	return CreatePollCommand{
		ManagerID:        "manager-1",
		IdempotencyKey:   "create-1",
		CommunityID:      "community-1",
		Title:            "Repaint the lobby",
		Description:      "Choose the color scheme for the lobby renovation.",
		Kind:             entities.PollKindSingleChoice,
		OpensAt:          testNow.Add(time.Hour),
		ClosesAt:         testNow.Add(48 * time.Hour),
		MinimumQuorum:    25,
		ResultVisibility: entities.VisibilityAlwaysPublic,
		InitialStatus:    entities.PollStatusScheduled,
		Options:          []string{"Warm beige", "Cool gray", "Leave as is"},
	}
}

func TestCreatePollPersistsPollWithOptions(t *testing.T) {
	f := newFixture(testNow)

	result, err := f.polls.CreatePoll(context.Background(), validCreateCommand())
	require.NoError(t, err)
	require.False(t, result.Replayed)
	require.NotEmpty(t, result.Poll.PollID)
	require.Equal(t, entities.PollStatusScheduled, result.Poll.Status)
	require.Equal(t, "manager-1", result.Poll.CreatedBy)
	require.Len(t, result.Options, 3)
	for i, option := range result.Options {
		require.Equal(t, i+1, option.DisplayOrder)
		require.Equal(t, result.Poll.PollID, option.PollID)
	}

	stored, err := f.store.GetPoll(context.Background(), result.Poll.PollID)
	require.NoError(t, err)
	require.Equal(t, result.Poll, stored)
}

func TestCreatePollDefaultsToDraft(t *testing.T) {
	f := newFixture(testNow)
	cmd := validCreateCommand()
	cmd.InitialStatus = ""

	result, err := f.polls.CreatePoll(context.Background(), cmd)
	require.NoError(t, err)
	require.Equal(t, entities.PollStatusDraft, result.Poll.Status)
}

func TestCreatePollReportsAllViolationsAtOnce(t *testing.T) {
	f := newFixture(testNow)
	cmd := CreatePollCommand{
		ManagerID:        "manager-1",
		IdempotencyKey:   "create-bad",
		CommunityID:      "community-1",
		Title:            "  ",
		Description:      "",
		Kind:             "ranked_choice",
		OpensAt:          testNow.Add(48 * time.Hour),
		ClosesAt:         testNow.Add(time.Hour),
		MinimumQuorum:    140,
		ResultVisibility: entities.VisibilityAlwaysPublic,
		Options:          []string{"Yes", "Yes", ""},
	}

	_, err := f.polls.CreatePoll(context.Background(), cmd)
	var validation *domainerrors.ValidationError
	require.ErrorAs(t, err, &validation)

	fields := make(map[string]bool, len(validation.Violations))
	for _, v := range validation.Violations {
		fields[v.Field] = true
	}
	require.True(t, fields["title"])
	require.True(t, fields["description"])
	require.True(t, fields["kind"])
	require.True(t, fields["closes_at"])
	require.True(t, fields["minimum_quorum"])
	require.True(t, fields["options[1]"])
	require.True(t, fields["options[2]"])
	require.True(t, fields["options"])
}

func TestCreatePollRequiresIdempotencyKey(t *testing.T) {
	f := newFixture(testNow)
	cmd := validCreateCommand()
	cmd.IdempotencyKey = ""

	_, err := f.polls.CreatePoll(context.Background(), cmd)
	require.ErrorIs(t, err, domainerrors.ErrIdempotencyKeyRequired)
}

func TestCreatePollReplaysOnSameKeyAndPayload(t *testing.T) {
	f := newFixture(testNow)
	cmd := validCreateCommand()

	first, err := f.polls.CreatePoll(context.Background(), cmd)
	require.NoError(t, err)

	second, err := f.polls.CreatePoll(context.Background(), cmd)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Poll.PollID, second.Poll.PollID)
	require.Len(t, second.Options, len(first.Options))
}

func TestCreatePollRejectsKeyReuseWithDifferentPayload(t *testing.T) {
	f := newFixture(testNow)
	cmd := validCreateCommand()

	_, err := f.polls.CreatePoll(context.Background(), cmd)
	require.NoError(t, err)

	cmd.Title = "A different poll entirely"
	_, err = f.polls.CreatePoll(context.Background(), cmd)
	require.ErrorIs(t, err, domainerrors.ErrIdempotencyConflict)
}

func TestPublishPollFromDraft(t *testing.T) {
	f := newFixture(testNow)
	cmd := validCreateCommand()
	cmd.InitialStatus = entities.PollStatusDraft

	created, err := f.polls.CreatePoll(context.Background(), cmd)
	require.NoError(t, err)

	published, err := f.polls.PublishPoll(context.Background(), TransitionCommand{
		PollID:    created.Poll.PollID,
		ManagerID: "manager-1",
	})
	require.NoError(t, err)
	require.Equal(t, entities.PollStatusScheduled, published.Status)
}

func TestPublishPollRejectsNonDraft(t *testing.T) {
	f := newFixture(testNow)
	created, err := f.polls.CreatePoll(context.Background(), validCreateCommand())
	require.NoError(t, err)

	_, err = f.polls.PublishPoll(context.Background(), TransitionCommand{
		PollID:    created.Poll.PollID,
		ManagerID: "manager-1",
	})
	require.ErrorIs(t, err, domainerrors.ErrInvalidTransition)
}

func TestForceOpenBeforeScheduledOpensAt(t *testing.T) {
	f := newFixture(testNow)
	created, err := f.polls.CreatePoll(context.Background(), validCreateCommand())
	require.NoError(t, err)

	opened, err := f.polls.ForceOpen(context.Background(), TransitionCommand{
		PollID:    created.Poll.PollID,
		ManagerID: "manager-1",
	})
	require.NoError(t, err)
	require.Equal(t, entities.PollStatusOpen, opened.Status)
}

func TestForceCloseRecordsManager(t *testing.T) {
	f := newFixture(testNow)
	created, err := f.polls.CreatePoll(context.Background(), validCreateCommand())
	require.NoError(t, err)

	_, err = f.polls.ForceOpen(context.Background(), TransitionCommand{
		PollID:    created.Poll.PollID,
		ManagerID: "manager-1",
	})
	require.NoError(t, err)

	closed, err := f.polls.ForceClose(context.Background(), TransitionCommand{
		PollID:    created.Poll.PollID,
		ManagerID: "manager-2",
	})
	require.NoError(t, err)
	require.Equal(t, entities.PollStatusClosed, closed.Status)
	require.Equal(t, "manager-2", closed.ClosedBy)
}

func TestForceCloseRejectsNonOpenPoll(t *testing.T) {
	f := newFixture(testNow)
	created, err := f.polls.CreatePoll(context.Background(), validCreateCommand())
	require.NoError(t, err)

	_, err = f.polls.ForceClose(context.Background(), TransitionCommand{
		PollID:    created.Poll.PollID,
		ManagerID: "manager-1",
	})
	require.ErrorIs(t, err, domainerrors.ErrInvalidTransition)
}

func TestCancelPollFromOpen(t *testing.T) {
	f := newFixture(testNow)
	created, err := f.polls.CreatePoll(context.Background(), validCreateCommand())
	require.NoError(t, err)

	f.clock.Set(created.Poll.OpensAt.Add(time.Minute))
	cancelled, err := f.polls.CancelPoll(context.Background(), TransitionCommand{
		PollID:    created.Poll.PollID,
		ManagerID: "manager-1",
	})
	require.NoError(t, err)
	require.Equal(t, entities.PollStatusCancelled, cancelled.Status)
	require.Equal(t, "manager-1", cancelled.CancelledBy)
}

func TestCancelPollRejectsClosedPoll(t *testing.T) {
	f := newFixture(testNow)
	created, err := f.polls.CreatePoll(context.Background(), validCreateCommand())
	require.NoError(t, err)

	// Move past closes-at: the transition must see the reconciled closed
	// status, not the stale stored "scheduled".
	f.clock.Set(created.Poll.ClosesAt.Add(time.Minute))
	_, err = f.polls.CancelPoll(context.Background(), TransitionCommand{
		PollID:    created.Poll.PollID,
		ManagerID: "manager-1",
	})
	require.ErrorIs(t, err, domainerrors.ErrInvalidTransition)

	stored, err := f.store.GetPoll(context.Background(), created.Poll.PollID)
	require.NoError(t, err)
	require.Equal(t, entities.PollStatusClosed, stored.Status)
}

func TestTransitionUnknownPoll(t *testing.T) {
	f := newFixture(testNow)
	_, err := f.polls.PublishPoll(context.Background(), TransitionCommand{
		PollID:    "missing",
		ManagerID: "manager-1",
	})
	require.ErrorIs(t, err, domainerrors.ErrPollNotFound)
}
