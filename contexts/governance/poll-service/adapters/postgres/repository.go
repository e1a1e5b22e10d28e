package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"strata/contexts/governance/poll-service/domain/entities"
	domainerrors "strata/contexts/governance/poll-service/domain/errors"
	"strata/contexts/governance/poll-service/ports"
	"strata/internal/shared/events"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreatePoll persists the poll and its options in one transaction so a poll
// without options is never observable.
func (r *Repository) CreatePoll(ctx context.Context, poll entities.Poll, options []entities.Option) error {
	pollRow := pollModelFromEntity(poll)
	optionRows := make([]optionModel, 0, len(options))
	for _, option := range options {
		optionRows = append(optionRows, optionModelFromEntity(option))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&pollRow).Error; err != nil {
			return err
		}
		return tx.Create(&optionRows).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("governance_repo_create_poll_failed", err,
			"poll_id", strings.TrimSpace(poll.PollID),
			"community_id", strings.TrimSpace(poll.CommunityID),
		)
	}
	return nil
}

func (r *Repository) GetPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	var row pollModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(pollID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Poll{}, domainerrors.ErrPollNotFound
		}
		return entities.Poll{}, r.logError("governance_repo_get_poll_failed", err, "poll_id", strings.TrimSpace(pollID))
	}
	return row.toEntity(), nil
}

func (r *Repository) ListPolls(ctx context.Context, communityID string) ([]entities.Poll, error) {
	tx := r.db.WithContext(ctx).Model(&pollModel{})
	if strings.TrimSpace(communityID) != "" {
		tx = tx.Where("community_id = ?", strings.TrimSpace(communityID))
	}
	var rows []pollModel
	if err := tx.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_polls_failed", err,
			"community_id", strings.TrimSpace(communityID),
		)
	}
	items := make([]entities.Poll, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// SavePollStatus writes only lifecycle fields. Last-writer-wins is acceptable:
// clock transitions are a pure function of time, so concurrent reconcilers
// converge on the same value.
func (r *Repository) SavePollStatus(ctx context.Context, poll entities.Poll) error {
	result := r.db.WithContext(ctx).
		Model(&pollModel{}).
		Where("id = ?", strings.TrimSpace(poll.PollID)).
		Updates(map[string]any{
			"status":       string(poll.Status),
			"closed_by":    strings.TrimSpace(poll.ClosedBy),
			"cancelled_by": strings.TrimSpace(poll.CancelledBy),
			"updated_at":   poll.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("governance_repo_save_poll_status_failed", result.Error,
			"poll_id", strings.TrimSpace(poll.PollID),
			"status", string(poll.Status),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrPollNotFound
	}
	return nil
}

func (r *Repository) ListOptions(ctx context.Context, pollID string) ([]entities.Option, error) {
	var rows []optionModel
	if err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Order("display_order ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_options_failed", err,
			"poll_id", strings.TrimSpace(pollID),
		)
	}
	items := make([]entities.Option, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// CastBallot relies on the ballots table's unique index on
// (poll_id, voter_id); the constraint, not a prior read, is what rules out the
// duplicate-vote race. With allowChange the insert upgrades to an upsert that
// replaces the stored option in place.
func (r *Repository) CastBallot(
	ctx context.Context,
	ballot entities.Ballot,
	allowChange bool,
) (entities.Ballot, bool, error) {
	row := ballotModelFromEntity(ballot)

	if !allowChange {
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return entities.Ballot{}, false, domainerrors.ErrDuplicateVote
			}
			return entities.Ballot{}, false, r.logError("governance_repo_cast_ballot_failed", err,
				"poll_id", strings.TrimSpace(ballot.PollID),
				"voter_id", strings.TrimSpace(ballot.VoterID),
			)
		}
		return row.toEntity(), false, nil
	}

	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "poll_id"}, {Name: "voter_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"option_id":  row.OptionID,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return entities.Ballot{}, false, r.logError("governance_repo_cast_ballot_failed", create.Error,
			"poll_id", strings.TrimSpace(ballot.PollID),
			"voter_id", strings.TrimSpace(ballot.VoterID),
		)
	}

	stored, found, err := r.GetBallot(ctx, ballot.PollID, ballot.VoterID)
	if err != nil {
		return entities.Ballot{}, false, err
	}
	if !found {
		return entities.Ballot{}, false, domainerrors.ErrBallotNotFound
	}
	return stored, stored.BallotID != ballot.BallotID, nil
}

func (r *Repository) GetBallot(ctx context.Context, pollID string, voterID string) (entities.Ballot, bool, error) {
	var row ballotModel
	err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Where("voter_id = ?", strings.TrimSpace(voterID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Ballot{}, false, nil
		}
		return entities.Ballot{}, false, r.logError("governance_repo_get_ballot_failed", err,
			"poll_id", strings.TrimSpace(pollID),
			"voter_id", strings.TrimSpace(voterID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListBallots(ctx context.Context, pollID string) ([]entities.Ballot, error) {
	var rows []ballotModel
	if err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Order("cast_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_ballots_failed", err,
			"poll_id", strings.TrimSpace(pollID),
		)
	}
	items := make([]entities.Ballot, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) EligibleVoterCount(ctx context.Context, communityID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&memberProjectionModel{}).
		Where("community_id = ?", strings.TrimSpace(communityID)).
		Count(&count).
		Error
	if err != nil {
		return 0, r.logError("governance_repo_eligible_voter_count_failed", err,
			"community_id", strings.TrimSpace(communityID),
		)
	}
	return int(count), nil
}

func (r *Repository) IsMember(ctx context.Context, communityID string, voterID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&memberProjectionModel{}).
		Where("community_id = ?", strings.TrimSpace(communityID)).
		Where("resident_id = ?", strings.TrimSpace(voterID)).
		Count(&count).
		Error
	if err != nil {
		return false, r.logError("governance_repo_is_member_failed", err,
			"community_id", strings.TrimSpace(communityID),
			"resident_id", strings.TrimSpace(voterID),
		)
	}
	return count > 0, nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", strings.TrimSpace(key)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("governance_repo_idempotency_get_failed", err)
	}
	if !row.ExpiresAt.After(now.UTC()) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		PollID:      row.PollID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Key:         strings.TrimSpace(record.Key),
		RequestHash: strings.TrimSpace(record.RequestHash),
		PollID:      strings.TrimSpace(record.PollID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		if isUniqueViolation(err) {
			existing, found, getErr := r.Get(ctx, record.Key, time.Now().UTC())
			if getErr != nil {
				return getErr
			}
			if found && existing.RequestHash == row.RequestHash && existing.PollID == row.PollID {
				return nil
			}
			return domainerrors.ErrIdempotencyConflict
		}
		return r.logError("governance_repo_idempotency_put_failed", err)
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope events.Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAtUTC.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return r.logError("governance_repo_append_outbox_failed", err,
			"event_type", row.EventType,
		)
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_pending_outbox_failed", err)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      row.Payload,
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	at := publishedAt.UTC()
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": &at,
		})
	if result.Error != nil {
		return r.logError("governance_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "governance/poll-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("governance repository operation failed", fields...)
	return err
}

type pollModel struct {
	ID                string    `gorm:"column:id;primaryKey"`
	CommunityID       string    `gorm:"column:community_id"`
	Title             string    `gorm:"column:title"`
	Description       string    `gorm:"column:description"`
	Kind              string    `gorm:"column:kind"`
	OpensAt           time.Time `gorm:"column:opens_at"`
	ClosesAt          time.Time `gorm:"column:closes_at"`
	MinimumQuorum     int       `gorm:"column:minimum_quorum"`
	ResultVisibility  string    `gorm:"column:result_visibility"`
	AllowBallotChange bool      `gorm:"column:allow_ballot_change"`
	Status            string    `gorm:"column:status"`
	CreatedBy         string    `gorm:"column:created_by"`
	ClosedBy          string    `gorm:"column:closed_by"`
	CancelledBy       string    `gorm:"column:cancelled_by"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (pollModel) TableName() string {
	return "polls"
}

func pollModelFromEntity(poll entities.Poll) pollModel {
	row := pollModel{
		ID:                strings.TrimSpace(poll.PollID),
		CommunityID:       strings.TrimSpace(poll.CommunityID),
		Title:             strings.TrimSpace(poll.Title),
		Description:       strings.TrimSpace(poll.Description),
		Kind:              string(poll.Kind),
		OpensAt:           poll.OpensAt.UTC(),
		ClosesAt:          poll.ClosesAt.UTC(),
		MinimumQuorum:     poll.MinimumQuorum,
		ResultVisibility:  string(poll.ResultVisibility),
		AllowBallotChange: poll.AllowBallotChange,
		Status:            string(poll.Status),
		CreatedBy:         strings.TrimSpace(poll.CreatedBy),
		ClosedBy:          strings.TrimSpace(poll.ClosedBy),
		CancelledBy:       strings.TrimSpace(poll.CancelledBy),
		CreatedAt:         poll.CreatedAt.UTC(),
		UpdatedAt:         poll.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m pollModel) toEntity() entities.Poll {
	return entities.Poll{
		PollID:            m.ID,
		CommunityID:       m.CommunityID,
		Title:             m.Title,
		Description:       m.Description,
		Kind:              entities.PollKind(m.Kind),
		OpensAt:           m.OpensAt.UTC(),
		ClosesAt:          m.ClosesAt.UTC(),
		MinimumQuorum:     m.MinimumQuorum,
		ResultVisibility:  entities.ResultVisibility(m.ResultVisibility),
		AllowBallotChange: m.AllowBallotChange,
		Status:            entities.PollStatus(m.Status),
		CreatedBy:         m.CreatedBy,
		ClosedBy:          m.ClosedBy,
		CancelledBy:       m.CancelledBy,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

type optionModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	PollID       string    `gorm:"column:poll_id"`
	Text         string    `gorm:"column:text"`
	DisplayOrder int       `gorm:"column:display_order"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (optionModel) TableName() string {
	return "poll_options"
}

func optionModelFromEntity(option entities.Option) optionModel {
	return optionModel{
		ID:           strings.TrimSpace(option.OptionID),
		PollID:       strings.TrimSpace(option.PollID),
		Text:         strings.TrimSpace(option.Text),
		DisplayOrder: option.DisplayOrder,
		CreatedAt:    option.CreatedAt.UTC(),
	}
}

func (m optionModel) toEntity() entities.Option {
	return entities.Option{
		OptionID:     m.ID,
		PollID:       m.PollID,
		Text:         m.Text,
		DisplayOrder: m.DisplayOrder,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

type ballotModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	PollID    string    `gorm:"column:poll_id;uniqueIndex:idx_ballots_poll_voter"`
	VoterID   string    `gorm:"column:voter_id;uniqueIndex:idx_ballots_poll_voter"`
	OptionID  string    `gorm:"column:option_id"`
	CastAt    time.Time `gorm:"column:cast_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (ballotModel) TableName() string {
	return "ballots"
}

func ballotModelFromEntity(ballot entities.Ballot) ballotModel {
	return ballotModel{
		ID:        strings.TrimSpace(ballot.BallotID),
		PollID:    strings.TrimSpace(ballot.PollID),
		VoterID:   strings.TrimSpace(ballot.VoterID),
		OptionID:  strings.TrimSpace(ballot.OptionID),
		CastAt:    ballot.CastAt.UTC(),
		UpdatedAt: ballot.UpdatedAt.UTC(),
	}
}

func (m ballotModel) toEntity() entities.Ballot {
	return entities.Ballot{
		BallotID:  m.ID,
		PollID:    m.PollID,
		VoterID:   m.VoterID,
		OptionID:  m.OptionID,
		CastAt:    m.CastAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

type memberProjectionModel struct {
	CommunityID string `gorm:"column:community_id;primaryKey"`
	ResidentID  string `gorm:"column:resident_id;primaryKey"`
}

func (memberProjectionModel) TableName() string {
	return "community_members"
}

type idempotencyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	PollID      string    `gorm:"column:poll_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "poll_service_idempotency"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "governance_outbox"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.PollRepository = (*Repository)(nil)
var _ ports.BallotRepository = (*Repository)(nil)
var _ ports.MembershipRoster = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
