package http

import (
	"time"

	domainerrors "strata/contexts/governance/poll-service/domain/errors"
)

type ErrorResponse struct {
	Code    string                        `json:"code"`
	Message string                        `json:"message"`
	Fields  []domainerrors.FieldViolation `json:"fields,omitempty"`
}

type CreatePollRequest struct {
	CommunityID       string    `json:"community_id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Kind              string    `json:"kind"`
	OpensAt           time.Time `json:"opens_at"`
	ClosesAt          time.Time `json:"closes_at"`
	MinimumQuorum     int       `json:"minimum_quorum"`
	ResultVisibility  string    `json:"result_visibility"`
	AllowBallotChange bool      `json:"allow_ballot_change"`
	InitialStatus     string    `json:"initial_status,omitempty"`
	Options           []string  `json:"options"`
}

type OptionResponse struct {
	OptionID     string `json:"option_id"`
	Text         string `json:"text"`
	DisplayOrder int    `json:"display_order"`
}

type PollResponse struct {
	PollID            string           `json:"poll_id"`
	CommunityID       string           `json:"community_id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Kind              string           `json:"kind"`
	OpensAt           time.Time        `json:"opens_at"`
	ClosesAt          time.Time        `json:"closes_at"`
	MinimumQuorum     int              `json:"minimum_quorum"`
	ResultVisibility  string           `json:"result_visibility"`
	AllowBallotChange bool             `json:"allow_ballot_change"`
	Status            string           `json:"status"`
	CreatedBy         string           `json:"created_by"`
	CreatedAt         time.Time        `json:"created_at"`
	Options           []OptionResponse `json:"options,omitempty"`
	Replayed          bool             `json:"replayed,omitempty"`
}

type PollListResponse struct {
	Items []PollResponse `json:"items"`
}

type CastBallotRequest struct {
	OptionID string `json:"option_id"`
}

type BallotResponse struct {
	BallotID  string    `json:"ballot_id"`
	PollID    string    `json:"poll_id"`
	OptionID  string    `json:"option_id"`
	CastAt    time.Time `json:"cast_at"`
	WasUpdate bool      `json:"was_update"`
}

type OptionTallyItem struct {
	OptionID     string  `json:"option_id"`
	Text         string  `json:"text"`
	DisplayOrder int     `json:"display_order"`
	Count        int     `json:"count"`
	Percentage   float64 `json:"percentage"`
}

type TallyResponse struct {
	PollID          string            `json:"poll_id"`
	Status          string            `json:"status"`
	Options         []OptionTallyItem `json:"options,omitempty"`
	TotalBallots    int               `json:"total_ballots"`
	EligibleVoters  int               `json:"eligible_voters"`
	QuorumMet       bool              `json:"quorum_met"`
	HasVoted        bool              `json:"has_voted"`
	VoterChoice     string            `json:"voter_choice,omitempty"`
	ResultsWithheld bool              `json:"results_withheld,omitempty"`
}
