package queries

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"strata/contexts/governance/poll-service/adapters/memory"
	application "strata/contexts/governance/poll-service/application"
	"strata/contexts/governance/poll-service/domain/entities"
	domainerrors "strata/contexts/governance/poll-service/domain/errors"
)

func newLookupFixture(now time.Time) (*memory.Store, *fakeClock, PollLookupUseCase) {
	store := memory.NewStore()
	clock := &fakeClock{now: now}
	lookup := PollLookupUseCase{
		Polls:      store,
		Clock:      clock,
		Reconciler: application.PollReconciler{Polls: store, IDGen: store},
	}
	return store, clock, lookup
}

func seedLookupPoll(t *testing.T, store *memory.Store, pollID string, status entities.PollStatus, createdAt time.Time) {
	t.Helper()
	require.NoError(t, store.CreatePoll(context.Background(), entities.Poll{
		PollID:      pollID,
		CommunityID: "community-1",
		Title:       "Poll " + pollID,
		Kind:        entities.PollKindSingleChoice,
		OpensAt:     opens,
		ClosesAt:    closes,
		Status:      status,
		CreatedAt:   createdAt,
	}, []entities.Option{
		{OptionID: pollID + "-a", PollID: pollID, Text: "A", DisplayOrder: 1},
		{OptionID: pollID + "-b", PollID: pollID, Text: "B", DisplayOrder: 2},
	}))
}

func TestGetPollReconcilesBeforeReturning(t *testing.T) {
	store, _, lookup := newLookupFixture(opens.Add(time.Hour))
	seedLookupPoll(t, store, "poll-1", entities.PollStatusScheduled, opens.Add(-time.Hour))

	detail, err := lookup.GetPoll(context.Background(), "poll-1")
	require.NoError(t, err)
	require.Equal(t, entities.PollStatusOpen, detail.Poll.Status)
	require.Len(t, detail.Options, 2)
}

func TestGetPollUnknown(t *testing.T) {
	_, _, lookup := newLookupFixture(opens)
	_, err := lookup.GetPoll(context.Background(), "missing")
	require.ErrorIs(t, err, domainerrors.ErrPollNotFound)
}

func TestListPollsFiltersAfterReconcile(t *testing.T) {
	store, _, lookup := newLookupFixture(closes.Add(time.Hour))
	seedLookupPoll(t, store, "poll-stale", entities.PollStatusOpen, opens.Add(-2*time.Hour))
	seedLookupPoll(t, store, "poll-draft", entities.PollStatusDraft, opens.Add(-time.Hour))

	// The stored "open" poll is past closes-at, so an open filter must not
	// return it.
	open, err := lookup.ListPolls(context.Background(), "community-1", entities.PollStatusOpen)
	require.NoError(t, err)
	require.Empty(t, open)

	closed, err := lookup.ListPolls(context.Background(), "community-1", entities.PollStatusClosed)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.Equal(t, "poll-stale", closed[0].PollID)
}

func TestListPollsNewestFirst(t *testing.T) {
	store, _, lookup := newLookupFixture(opens)
	seedLookupPoll(t, store, "poll-old", entities.PollStatusDraft, opens.Add(-3*time.Hour))
	seedLookupPoll(t, store, "poll-new", entities.PollStatusDraft, opens.Add(-time.Hour))

	items, err := lookup.ListPolls(context.Background(), "community-1", "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "poll-new", items[0].PollID)
	require.Equal(t, "poll-old", items[1].PollID)
}
