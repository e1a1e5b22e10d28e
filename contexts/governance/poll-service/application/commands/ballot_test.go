package commands

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"strata/contexts/governance/poll-service/domain/entities"
	domainerrors "strata/contexts/governance/poll-service/domain/errors"
)

// openPoll creates a scheduled poll, moves the clock inside the voting window
// and returns the poll with its options.
func openPoll(t *testing.T, f *fixture, mutate func(*CreatePollCommand)) (entities.Poll, []entities.Option) {
	t.Helper()
	cmd := validCreateCommand()
	if mutate != nil {
		mutate(&cmd)
	}
	created, err := f.polls.CreatePoll(context.Background(), cmd)
	require.NoError(t, err)
	f.clock.Set(created.Poll.OpensAt.Add(time.Minute))
	f.store.AddMember(created.Poll.CommunityID, "voter-1")
	return created.Poll, created.Options
}

func TestCastBallotRecordsVote(t *testing.T) {
	f := newFixture(testNow)
	poll, options := openPoll(t, f, nil)

	result, err := f.ballot.CastBallot(context.Background(), CastBallotCommand{
		PollID:   poll.PollID,
		VoterID:  "voter-1",
		OptionID: options[0].OptionID,
	})
	require.NoError(t, err)
	require.False(t, result.WasUpdate)
	require.Equal(t, options[0].OptionID, result.Ballot.OptionID)

	stored, found, err := f.store.GetBallot(context.Background(), poll.PollID, "voter-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, result.Ballot.BallotID, stored.BallotID)
}

func TestCastBallotRejectsDuplicate(t *testing.T) {
	f := newFixture(testNow)
	poll, options := openPoll(t, f, nil)

	_, err := f.ballot.CastBallot(context.Background(), CastBallotCommand{
		PollID:   poll.PollID,
		VoterID:  "voter-1",
		OptionID: options[0].OptionID,
	})
	require.NoError(t, err)

	_, err = f.ballot.CastBallot(context.Background(), CastBallotCommand{
		PollID:   poll.PollID,
		VoterID:  "voter-1",
		OptionID: options[1].OptionID,
	})
	require.ErrorIs(t, err, domainerrors.ErrDuplicateVote)
}

func TestCastBallotChangeReplacesChoiceInPlace(t *testing.T) {
	f := newFixture(testNow)
	poll, options := openPoll(t, f, func(cmd *CreatePollCommand) {
		cmd.AllowBallotChange = true
	})

	first, err := f.ballot.CastBallot(context.Background(), CastBallotCommand{
		PollID:   poll.PollID,
		VoterID:  "voter-1",
		OptionID: options[0].OptionID,
	})
	require.NoError(t, err)

	second, err := f.ballot.CastBallot(context.Background(), CastBallotCommand{
		PollID:   poll.PollID,
		VoterID:  "voter-1",
		OptionID: options[1].OptionID,
	})
	require.NoError(t, err)
	require.True(t, second.WasUpdate)
	require.Equal(t, first.Ballot.BallotID, second.Ballot.BallotID)
	require.Equal(t, options[1].OptionID, second.Ballot.OptionID)

	ballots, err := f.store.ListBallots(context.Background(), poll.PollID)
	require.NoError(t, err)
	require.Len(t, ballots, 1)
}

func TestCastBallotAcceptedAtExactlyClosesAt(t *testing.T) {
	f := newFixture(testNow)
	poll, options := openPoll(t, f, nil)

	f.clock.Set(poll.ClosesAt)
	_, err := f.ballot.CastBallot(context.Background(), CastBallotCommand{
		PollID:   poll.PollID,
		VoterID:  "voter-1",
		OptionID: options[0].OptionID,
	})
	require.NoError(t, err)
}

func TestCastBallotRejectedAfterClosesAt(t *testing.T) {
	f := newFixture(testNow)
	poll, options := openPoll(t, f, nil)

	f.clock.Set(poll.ClosesAt.Add(time.Second))
	_, err := f.ballot.CastBallot(context.Background(), CastBallotCommand{
		PollID:   poll.PollID,
		VoterID:  "voter-1",
		OptionID: options[0].OptionID,
	})
	require.ErrorIs(t, err, domainerrors.ErrPollNotOpen)

	// The rejected cast must also have corrected the stored status.
	stored, err := f.store.GetPoll(context.Background(), poll.PollID)
	require.NoError(t, err)
	require.Equal(t, entities.PollStatusClosed, stored.Status)
}

func TestCastBallotRejectsNonMember(t *testing.T) {
	f := newFixture(testNow)
	poll, options := openPoll(t, f, nil)

	_, err := f.ballot.CastBallot(context.Background(), CastBallotCommand{
		PollID:   poll.PollID,
		VoterID:  "stranger-1",
		OptionID: options[0].OptionID,
	})
	require.ErrorIs(t, err, domainerrors.ErrForbidden)
}

func TestCastBallotRejectsForeignOption(t *testing.T) {
	f := newFixture(testNow)
	poll, _ := openPoll(t, f, nil)

	_, err := f.ballot.CastBallot(context.Background(), CastBallotCommand{
		PollID:   poll.PollID,
		VoterID:  "voter-1",
		OptionID: "option-from-another-poll",
	})
	require.ErrorIs(t, err, domainerrors.ErrUnknownOption)
}

func TestCastBallotRejectsDraftPoll(t *testing.T) {
	f := newFixture(testNow)
	cmd := validCreateCommand()
	cmd.InitialStatus = entities.PollStatusDraft
	created, err := f.polls.CreatePoll(context.Background(), cmd)
	require.NoError(t, err)
	f.store.AddMember(created.Poll.CommunityID, "voter-1")

	_, err = f.ballot.CastBallot(context.Background(), CastBallotCommand{
		PollID:   created.Poll.PollID,
		VoterID:  "voter-1",
		OptionID: created.Options[0].OptionID,
	})
	require.ErrorIs(t, err, domainerrors.ErrPollNotOpen)
}

func TestCastBallotValidatesInput(t *testing.T) {
	f := newFixture(testNow)

	_, err := f.ballot.CastBallot(context.Background(), CastBallotCommand{})
	var validation *domainerrors.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Len(t, validation.Violations, 3)
}

func TestConcurrentCastsAdmitExactlyOneBallot(t *testing.T) {
	f := newFixture(testNow)
	poll, options := openPoll(t, f, nil)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = f.ballot.CastBallot(context.Background(), CastBallotCommand{
				PollID:   poll.PollID,
				VoterID:  "voter-1",
				OptionID: options[slot%len(options)].OptionID,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, domainerrors.ErrDuplicateVote)
		}
	}
	require.Equal(t, 1, succeeded)

	ballots, err := f.store.ListBallots(context.Background(), poll.PollID)
	require.NoError(t, err)
	require.Len(t, ballots, 1)
}
