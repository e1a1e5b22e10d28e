package queries

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	application "strata/contexts/governance/poll-service/application"
	"strata/contexts/governance/poll-service/domain/entities"
	domainerrors "strata/contexts/governance/poll-service/domain/errors"
	"strata/contexts/governance/poll-service/ports"
)

// TallyQuery identifies the requester so visibility rules can be applied. Role
// is caller-asserted; the identity provider sits outside this core.
type TallyQuery struct {
	PollID        string
	RequesterID   string
	RequesterRole string
}

// TallyUseCase computes live and final tallies gated by the poll's result
// visibility, and evaluates quorum against the externally supplied eligible
// voter count. Quorum-not-met is data, never an error.
type TallyUseCase struct {
	Polls      ports.PollRepository
	Ballots    ports.BallotRepository
	Roster     ports.MembershipRoster
	Clock      ports.Clock
	Reconciler application.PollReconciler
	Logger     *slog.Logger
}

func (uc TallyUseCase) GetTally(ctx context.Context, query TallyQuery) (entities.TallyResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	pollID := strings.TrimSpace(query.PollID)
	requesterID := strings.TrimSpace(query.RequesterID)

	poll, err := uc.Reconciler.Resolve(ctx, pollID, uc.now())
	if err != nil {
		return entities.TallyResult{}, err
	}

	ownBallot, hasVoted, err := uc.Ballots.GetBallot(ctx, pollID, requesterID)
	if err != nil {
		return entities.TallyResult{}, err
	}

	if poll.ResultVisibility == entities.VisibilityPublicOnlyToVoter &&
		!hasVoted && !isPrivileged(poll, requesterID, query.RequesterRole) {
		logger.Warn("tally rejected: results restricted to voters",
			"event", "governance_tally_forbidden",
			"module", "governance/poll-service",
			"layer", "application",
			"poll_id", pollID,
			"requester_id", requesterID,
		)
		return entities.TallyResult{}, domainerrors.ErrForbidden
	}

	result := entities.TallyResult{
		PollID:   poll.PollID,
		Status:   poll.Status,
		HasVoted: hasVoted,
	}

	if poll.ResultVisibility == entities.VisibilityPublicAfterClose &&
		poll.Status != entities.PollStatusClosed {
		// Counts stay suppressed until close; only the requester's own
		// participation flag is disclosed.
		result.ResultsWithheld = true
		return result, nil
	}

	options, err := uc.Polls.ListOptions(ctx, pollID)
	if err != nil {
		return entities.TallyResult{}, err
	}
	ballots, err := uc.Ballots.ListBallots(ctx, pollID)
	if err != nil {
		return entities.TallyResult{}, err
	}
	eligible, err := uc.Roster.EligibleVoterCount(ctx, poll.CommunityID)
	if err != nil {
		return entities.TallyResult{}, err
	}

	// The ledger guarantees one ballot per voter, so the ballot count is the
	// distinct voter count.
	totalBallots := len(ballots)
	counts := make(map[string]int, len(options))
	for _, ballot := range ballots {
		counts[ballot.OptionID]++
	}

	items := make([]entities.OptionTally, 0, len(options))
	for _, option := range options {
		count := counts[option.OptionID]
		percentage := 0.0
		if totalBallots > 0 {
			percentage = float64(count) / float64(totalBallots) * 100
		}
		items = append(items, entities.OptionTally{
			OptionID:     option.OptionID,
			Text:         option.Text,
			DisplayOrder: option.DisplayOrder,
			Count:        count,
			Percentage:   percentage,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].DisplayOrder < items[j].DisplayOrder
	})

	result.Options = items
	result.TotalBallots = totalBallots
	result.EligibleVoters = eligible
	// Integer arithmetic: participation% >= quorum%  <=>  ballots*100 >= quorum*eligible.
	result.QuorumMet = totalBallots*100 >= poll.MinimumQuorum*eligible && (eligible > 0 || poll.MinimumQuorum == 0)
	if hasVoted && poll.Kind != entities.PollKindSecretBallot {
		result.VoterChoice = ownBallot.OptionID
	}
	return result, nil
}

func (uc TallyUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

// isPrivileged grants restricted tallies to the poll's creator and to manager
// roles asserted by the identity layer.
func isPrivileged(poll entities.Poll, requesterID string, role string) bool {
	if requesterID != "" && strings.EqualFold(requesterID, strings.TrimSpace(poll.CreatedBy)) {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(role)) {
	case entities.RoleManager, entities.RoleSuperAdmin:
		return true
	default:
		return false
	}
}
