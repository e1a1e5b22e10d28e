package pollservice

import (
	"context"
	"errors"
	"testing"
	"time"

	domainerrors "strata/contexts/governance/poll-service/domain/errors"
	httptransport "strata/contexts/governance/poll-service/transport/http"
)

func createRequest(now time.Time) httptransport.CreatePollRequest {
	return httptransport.CreatePollRequest{
		CommunityID:      "community-1",
		Title:            "Install bike racks",
		Description:      "Decide whether to install bike racks in the garage.",
		Kind:             "single_choice",
		OpensAt:          now.Add(-time.Hour),
		ClosesAt:         now.Add(time.Hour),
		MinimumQuorum:    0,
		ResultVisibility: "always_public",
		InitialStatus:    "scheduled",
		Options:          []string{"Yes", "No"},
	}
}

func TestPollVotingEndToEnd(t *testing.T) {
	module := NewInMemoryModule(nil)
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := module.Handler.CreatePollHandler(ctx, "manager-1", "idem-1", createRequest(now))
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	if len(created.Options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(created.Options))
	}

	module.Store.AddMember("community-1", "voter-1")

	// The poll was stored scheduled with opens-at in the past; the cast path
	// must reconcile it to open on its own.
	ballot, err := module.Handler.CastBallotHandler(ctx, created.PollID, "voter-1", httptransport.CastBallotRequest{
		OptionID: created.Options[0].OptionID,
	})
	if err != nil {
		t.Fatalf("cast ballot: %v", err)
	}
	if ballot.WasUpdate {
		t.Fatalf("first cast must not be an update")
	}

	fetched, err := module.Handler.GetPollHandler(ctx, created.PollID)
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	if fetched.Status != "open" {
		t.Fatalf("expected reconciled open status, got %s", fetched.Status)
	}

	tally, err := module.Handler.TallyHandler(ctx, created.PollID, "voter-1", "resident")
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.TotalBallots != 1 {
		t.Fatalf("expected 1 ballot, got %d", tally.TotalBallots)
	}
	if tally.VoterChoice != created.Options[0].OptionID {
		t.Fatalf("expected voter choice disclosed, got %q", tally.VoterChoice)
	}
	if !tally.QuorumMet {
		t.Fatalf("zero quorum should always be met")
	}

	closed, err := module.Handler.ForceCloseHandler(ctx, created.PollID, "manager-1")
	if err != nil {
		t.Fatalf("force close: %v", err)
	}
	if closed.Status != "closed" {
		t.Fatalf("expected closed, got %s", closed.Status)
	}

	_, err = module.Handler.CastBallotHandler(ctx, created.PollID, "voter-1", httptransport.CastBallotRequest{
		OptionID: created.Options[1].OptionID,
	})
	if !errors.Is(err, domainerrors.ErrPollNotOpen) {
		t.Fatalf("expected poll not open after force close, got %v", err)
	}
}

func TestCreatePollReplayThroughModule(t *testing.T) {
	module := NewInMemoryModule(nil)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := module.Handler.CreatePollHandler(ctx, "manager-1", "idem-replay", createRequest(now))
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	second, err := module.Handler.CreatePollHandler(ctx, "manager-1", "idem-replay", createRequest(now))
	if err != nil {
		t.Fatalf("replay create poll: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected replay marker")
	}
	if second.PollID != first.PollID {
		t.Fatalf("expected same poll, got %s and %s", first.PollID, second.PollID)
	}
}
