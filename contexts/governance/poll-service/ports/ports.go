package ports

import (
	"context"
	"time"

	"strata/contexts/governance/poll-service/domain/entities"
	"strata/internal/shared/events"
)

// PollRepository owns poll and option records. CreatePoll persists the poll
// together with its options in one atomic unit; a poll without options must
// never be observable.
type PollRepository interface {
	CreatePoll(ctx context.Context, poll entities.Poll, options []entities.Option) error
	GetPoll(ctx context.Context, pollID string) (entities.Poll, error)
	ListPolls(ctx context.Context, communityID string) ([]entities.Poll, error)
	SavePollStatus(ctx context.Context, poll entities.Poll) error
	ListOptions(ctx context.Context, pollID string) ([]entities.Option, error)
}

// BallotRepository owns ballots. CastBallot is the single write path and must
// enforce at-most-one ballot per (poll, voter) atomically: when allowChange is
// false a second cast fails with ErrDuplicateVote, when true it replaces the
// stored option in place. A read-then-write sequence is not an acceptable
// implementation.
type BallotRepository interface {
	CastBallot(ctx context.Context, ballot entities.Ballot, allowChange bool) (entities.Ballot, bool, error)
	GetBallot(ctx context.Context, pollID string, voterID string) (entities.Ballot, bool, error)
	ListBallots(ctx context.Context, pollID string) ([]entities.Ballot, error)
}

// MembershipRoster is the external membership collaborator. The poll core does
// not own resident records; it only asks who may vote and how many could.
type MembershipRoster interface {
	EligibleVoterCount(ctx context.Context, communityID string) (int, error)
	IsMember(ctx context.Context, communityID string, voterID string) (bool, error)
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	PollID      string
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope events.Envelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event events.Envelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
