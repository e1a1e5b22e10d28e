package entities

import "time"

type PollKind string

const (
	PollKindSingleChoice PollKind = "single_choice"
	PollKindMultiChoice  PollKind = "multi_choice"
	PollKindSecretBallot PollKind = "secret_ballot"
)

type PollStatus string

const (
	PollStatusDraft     PollStatus = "draft"
	PollStatusScheduled PollStatus = "scheduled"
	PollStatusOpen      PollStatus = "open"
	PollStatusClosed    PollStatus = "closed"
	PollStatusCancelled PollStatus = "cancelled"
)

type ResultVisibility string

const (
	VisibilityAlwaysPublic      ResultVisibility = "always_public"
	VisibilityPublicAfterClose  ResultVisibility = "public_after_close"
	VisibilityPublicOnlyToVoter ResultVisibility = "public_only_to_voter"
)

// Roles asserted by the identity provider. The core trusts the caller.
const (
	RoleResident   = "resident"
	RoleManager    = "manager"
	RoleSuperAdmin = "super_admin"
)

type Poll struct {
	PollID            string
	CommunityID       string
	Title             string
	Description       string
	Kind              PollKind
	OpensAt           time.Time
	ClosesAt          time.Time
	MinimumQuorum     int
	ResultVisibility  ResultVisibility
	AllowBallotChange bool
	Status            PollStatus
	CreatedBy         string
	ClosedBy          string
	CancelledBy       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Terminal reports whether no further status transition is possible.
func (p Poll) Terminal() bool {
	return p.Status == PollStatusClosed || p.Status == PollStatusCancelled
}

// Cancellable mirrors the manager cancellation rule: cancel is legal from any
// non-terminal status.
func (p Poll) Cancellable() bool {
	switch p.Status {
	case PollStatusDraft, PollStatusScheduled, PollStatusOpen:
		return true
	default:
		return false
	}
}

type Option struct {
	OptionID     string
	PollID       string
	Text         string
	DisplayOrder int
	CreatedAt    time.Time
}

type Ballot struct {
	BallotID  string
	PollID    string
	VoterID   string
	OptionID  string
	CastAt    time.Time
	UpdatedAt time.Time
}

type OptionTally struct {
	OptionID     string
	Text         string
	DisplayOrder int
	Count        int
	Percentage   float64
}

type TallyResult struct {
	PollID          string
	Status          PollStatus
	Options         []OptionTally
	TotalBallots    int
	EligibleVoters  int
	QuorumMet       bool
	HasVoted        bool
	VoterChoice     string
	ResultsWithheld bool
}
