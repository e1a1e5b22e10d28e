package queries

import (
	"context"
	"strings"
	"time"

	application "strata/contexts/governance/poll-service/application"
	"strata/contexts/governance/poll-service/domain/entities"
	"strata/contexts/governance/poll-service/ports"
)

// PollLookupUseCase serves read paths for single polls and community listings.
// Every returned poll is reconciled against the clock first.
type PollLookupUseCase struct {
	Polls      ports.PollRepository
	Clock      ports.Clock
	Reconciler application.PollReconciler
}

type PollDetail struct {
	Poll    entities.Poll
	Options []entities.Option
}

func (uc PollLookupUseCase) GetPoll(ctx context.Context, pollID string) (PollDetail, error) {
	poll, err := uc.Reconciler.Resolve(ctx, strings.TrimSpace(pollID), uc.now())
	if err != nil {
		return PollDetail{}, err
	}
	options, err := uc.Polls.ListOptions(ctx, poll.PollID)
	if err != nil {
		return PollDetail{}, err
	}
	return PollDetail{Poll: poll, Options: options}, nil
}

// ListPolls returns a community's polls newest-created first. The status
// filter is applied after reconciliation, so a stored "open" poll past its
// close time lists as closed.
func (uc PollLookupUseCase) ListPolls(
	ctx context.Context,
	communityID string,
	statusFilter entities.PollStatus,
) ([]entities.Poll, error) {
	polls, err := uc.Polls.ListPolls(ctx, strings.TrimSpace(communityID))
	if err != nil {
		return nil, err
	}
	now := uc.now()
	items := make([]entities.Poll, 0, len(polls))
	for _, poll := range polls {
		reconciled, err := uc.Reconciler.Apply(ctx, poll, now)
		if err != nil {
			return nil, err
		}
		if statusFilter != "" && reconciled.Status != statusFilter {
			continue
		}
		items = append(items, reconciled)
	}
	return items, nil
}

func (uc PollLookupUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
