package httpadapter

import (
	"context"
	"log/slog"

	"strata/contexts/governance/poll-service/application/commands"
	"strata/contexts/governance/poll-service/application/queries"
	"strata/contexts/governance/poll-service/domain/entities"
	httptransport "strata/contexts/governance/poll-service/transport/http"
)

type Handler struct {
	Polls   commands.PollUseCase
	Ballots commands.BallotUseCase
	Lookup  queries.PollLookupUseCase
	Tallies queries.TallyUseCase
	Logger  *slog.Logger
}

func (h Handler) CreatePollHandler(
	ctx context.Context,
	managerID string,
	idempotencyKey string,
	req httptransport.CreatePollRequest,
) (httptransport.PollResponse, error) {
	result, err := h.Polls.CreatePoll(ctx, commands.CreatePollCommand{
		ManagerID:         managerID,
		IdempotencyKey:    idempotencyKey,
		CommunityID:       req.CommunityID,
		Title:             req.Title,
		Description:       req.Description,
		Kind:              entities.PollKind(req.Kind),
		OpensAt:           req.OpensAt,
		ClosesAt:          req.ClosesAt,
		MinimumQuorum:     req.MinimumQuorum,
		ResultVisibility:  entities.ResultVisibility(req.ResultVisibility),
		AllowBallotChange: req.AllowBallotChange,
		InitialStatus:     entities.PollStatus(req.InitialStatus),
		Options:           req.Options,
	})
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	resp := mapPoll(result.Poll, result.Options)
	resp.Replayed = result.Replayed
	return resp, nil
}

func (h Handler) PublishPollHandler(ctx context.Context, pollID string, managerID string) (httptransport.PollResponse, error) {
	poll, err := h.Polls.PublishPoll(ctx, commands.TransitionCommand{PollID: pollID, ManagerID: managerID})
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	return mapPoll(poll, nil), nil
}

func (h Handler) CancelPollHandler(ctx context.Context, pollID string, managerID string) (httptransport.PollResponse, error) {
	poll, err := h.Polls.CancelPoll(ctx, commands.TransitionCommand{PollID: pollID, ManagerID: managerID})
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	return mapPoll(poll, nil), nil
}

func (h Handler) ForceOpenHandler(ctx context.Context, pollID string, managerID string) (httptransport.PollResponse, error) {
	poll, err := h.Polls.ForceOpen(ctx, commands.TransitionCommand{PollID: pollID, ManagerID: managerID})
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	return mapPoll(poll, nil), nil
}

func (h Handler) ForceCloseHandler(ctx context.Context, pollID string, managerID string) (httptransport.PollResponse, error) {
	poll, err := h.Polls.ForceClose(ctx, commands.TransitionCommand{PollID: pollID, ManagerID: managerID})
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	return mapPoll(poll, nil), nil
}

func (h Handler) GetPollHandler(ctx context.Context, pollID string) (httptransport.PollResponse, error) {
	detail, err := h.Lookup.GetPoll(ctx, pollID)
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	return mapPoll(detail.Poll, detail.Options), nil
}

func (h Handler) ListPollsHandler(ctx context.Context, communityID string, statusFilter string) (httptransport.PollListResponse, error) {
	polls, err := h.Lookup.ListPolls(ctx, communityID, entities.PollStatus(statusFilter))
	if err != nil {
		return httptransport.PollListResponse{}, err
	}
	items := make([]httptransport.PollResponse, 0, len(polls))
	for _, poll := range polls {
		items = append(items, mapPoll(poll, nil))
	}
	return httptransport.PollListResponse{Items: items}, nil
}

func (h Handler) CastBallotHandler(
	ctx context.Context,
	pollID string,
	voterID string,
	req httptransport.CastBallotRequest,
) (httptransport.BallotResponse, error) {
	result, err := h.Ballots.CastBallot(ctx, commands.CastBallotCommand{
		PollID:   pollID,
		VoterID:  voterID,
		OptionID: req.OptionID,
	})
	if err != nil {
		return httptransport.BallotResponse{}, err
	}
	return httptransport.BallotResponse{
		BallotID:  result.Ballot.BallotID,
		PollID:    result.Ballot.PollID,
		OptionID:  result.Ballot.OptionID,
		CastAt:    result.Ballot.CastAt,
		WasUpdate: result.WasUpdate,
	}, nil
}

func (h Handler) TallyHandler(
	ctx context.Context,
	pollID string,
	requesterID string,
	requesterRole string,
) (httptransport.TallyResponse, error) {
	tally, err := h.Tallies.GetTally(ctx, queries.TallyQuery{
		PollID:        pollID,
		RequesterID:   requesterID,
		RequesterRole: requesterRole,
	})
	if err != nil {
		return httptransport.TallyResponse{}, err
	}
	items := make([]httptransport.OptionTallyItem, 0, len(tally.Options))
	for _, item := range tally.Options {
		items = append(items, httptransport.OptionTallyItem{
			OptionID:     item.OptionID,
			Text:         item.Text,
			DisplayOrder: item.DisplayOrder,
			Count:        item.Count,
			Percentage:   item.Percentage,
		})
	}
	return httptransport.TallyResponse{
		PollID:          tally.PollID,
		Status:          string(tally.Status),
		Options:         items,
		TotalBallots:    tally.TotalBallots,
		EligibleVoters:  tally.EligibleVoters,
		QuorumMet:       tally.QuorumMet,
		HasVoted:        tally.HasVoted,
		VoterChoice:     tally.VoterChoice,
		ResultsWithheld: tally.ResultsWithheld,
	}, nil
}

func mapPoll(poll entities.Poll, options []entities.Option) httptransport.PollResponse {
	items := make([]httptransport.OptionResponse, 0, len(options))
	for _, option := range options {
		items = append(items, httptransport.OptionResponse{
			OptionID:     option.OptionID,
			Text:         option.Text,
			DisplayOrder: option.DisplayOrder,
		})
	}
	return httptransport.PollResponse{
		PollID:            poll.PollID,
		CommunityID:       poll.CommunityID,
		Title:             poll.Title,
		Description:       poll.Description,
		Kind:              string(poll.Kind),
		OpensAt:           poll.OpensAt,
		ClosesAt:          poll.ClosesAt,
		MinimumQuorum:     poll.MinimumQuorum,
		ResultVisibility:  string(poll.ResultVisibility),
		AllowBallotChange: poll.AllowBallotChange,
		Status:            string(poll.Status),
		CreatedBy:         poll.CreatedBy,
		CreatedAt:         poll.CreatedAt,
		Options:           items,
	}
}
