package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"strata/contexts/governance/poll-service/domain/entities"
	domainerrors "strata/contexts/governance/poll-service/domain/errors"
	"strata/contexts/governance/poll-service/ports"
	"strata/internal/shared/events"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

// Store implements every poll-service port in memory. The single mutex makes
// the ballot cast an atomic check-and-set, matching the uniqueness guarantee
// the relational adapter gets from its constraint.
type Store struct {
	mu sync.RWMutex

	polls       map[string]entities.Poll
	options     map[string][]entities.Option
	ballots     map[string]entities.Ballot
	members     map[string]map[string]struct{}
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]outboxRecord
}

func NewStore() *Store {
	return &Store{
		polls:       make(map[string]entities.Poll),
		options:     make(map[string][]entities.Option),
		ballots:     make(map[string]entities.Ballot),
		members:     make(map[string]map[string]struct{}),
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]outboxRecord),
	}
}

// AddMember seeds the membership roster projection.
func (s *Store) AddMember(communityID string, voterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	communityID = strings.TrimSpace(communityID)
	if s.members[communityID] == nil {
		s.members[communityID] = make(map[string]struct{})
	}
	s.members[communityID][strings.TrimSpace(voterID)] = struct{}{}
}

func (s *Store) CreatePoll(_ context.Context, poll entities.Poll, options []entities.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pollID := strings.TrimSpace(poll.PollID)
	if _, exists := s.polls[pollID]; exists {
		return domainerrors.ErrConflict
	}
	s.polls[pollID] = poll
	stored := make([]entities.Option, len(options))
	copy(stored, options)
	s.options[pollID] = stored
	return nil
}

func (s *Store) GetPoll(_ context.Context, pollID string) (entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	poll, ok := s.polls[strings.TrimSpace(pollID)]
	if !ok {
		return entities.Poll{}, domainerrors.ErrPollNotFound
	}
	return poll, nil
}

func (s *Store) ListPolls(_ context.Context, communityID string) ([]entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	communityID = strings.TrimSpace(communityID)
	items := make([]entities.Poll, 0)
	for _, poll := range s.polls {
		if communityID == "" || poll.CommunityID == communityID {
			items = append(items, poll)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].PollID > items[j].PollID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) SavePollStatus(_ context.Context, poll entities.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pollID := strings.TrimSpace(poll.PollID)
	if _, ok := s.polls[pollID]; !ok {
		return domainerrors.ErrPollNotFound
	}
	s.polls[pollID] = poll
	return nil
}

func (s *Store) ListOptions(_ context.Context, pollID string) ([]entities.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.options[strings.TrimSpace(pollID)]
	items := make([]entities.Option, len(stored))
	copy(items, stored)
	sort.Slice(items, func(i, j int) bool {
		return items[i].DisplayOrder < items[j].DisplayOrder
	})
	return items, nil
}

func (s *Store) CastBallot(
	_ context.Context,
	ballot entities.Ballot,
	allowChange bool,
) (entities.Ballot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ballotKey(ballot.PollID, ballot.VoterID)
	existing, found := s.ballots[key]
	if found {
		if !allowChange {
			return entities.Ballot{}, false, domainerrors.ErrDuplicateVote
		}
		existing.OptionID = strings.TrimSpace(ballot.OptionID)
		existing.UpdatedAt = ballot.UpdatedAt.UTC()
		s.ballots[key] = existing
		return existing, true, nil
	}
	s.ballots[key] = ballot
	return ballot, false, nil
}

func (s *Store) GetBallot(_ context.Context, pollID string, voterID string) (entities.Ballot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ballot, ok := s.ballots[ballotKey(pollID, voterID)]
	if !ok {
		return entities.Ballot{}, false, nil
	}
	return ballot, true, nil
}

func (s *Store) ListBallots(_ context.Context, pollID string) ([]entities.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pollID = strings.TrimSpace(pollID)
	items := make([]entities.Ballot, 0)
	for _, ballot := range s.ballots {
		if ballot.PollID == pollID {
			items = append(items, ballot)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CastAt.Before(items[j].CastAt)
	})
	return items, nil
}

func (s *Store) EligibleVoterCount(_ context.Context, communityID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members[strings.TrimSpace(communityID)]), nil
}

func (s *Store) IsMember(_ context.Context, communityID string, voterID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[strings.TrimSpace(communityID)][strings.TrimSpace(voterID)]
	return ok, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = strings.TrimSpace(key)
	record, exists := s.idempotency[key]
	if !exists {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now.UTC()) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(record.Key)
	existing, exists := s.idempotency[key]
	if exists {
		if existing.RequestHash != record.RequestHash || existing.PollID != record.PollID {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	s.idempotency[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: strings.TrimSpace(record.RequestHash),
		PollID:      strings.TrimSpace(record.PollID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope events.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if _, ok := s.outbox[outboxID]; ok {
		return nil
	}
	createdAt := envelope.OccurredAtUTC.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func ballotKey(pollID string, voterID string) string {
	return strings.TrimSpace(pollID) + "|" + strings.TrimSpace(voterID)
}

var _ ports.PollRepository = (*Store)(nil)
var _ ports.BallotRepository = (*Store)(nil)
var _ ports.MembershipRoster = (*Store)(nil)
var _ ports.IdempotencyStore = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
