package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openclaw/channel-session-go/internal/database"
	"github.com/openclaw/channel-session-go/internal/model"
)

type ChannelRepository interface {
	FindByID(ctx context.Context, id string) (*model.Channel, error)
	FindAll(ctx context.Context, limit, offset int) ([]model.Channel, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, params model.CreateChannelParams) (*model.Channel, error)
	Update(ctx context.Context, id string, params model.UpdateChannelParams) (*model.Channel, error)
	UpdateStatus(ctx context.Context, id string, status model.ChannelStatus, lastActiveAt *time.Time) error
	ResetStatuses(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) (bool, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ChannelRepository
}

type channelRepo struct {
	db database.DBTX
}

func NewChannelRepository(db *sqlx.DB) ChannelRepository {
	return &channelRepo{db: db}
}

func (r *channelRepo) WithTx(tx *sqlx.Tx) ChannelRepository {
	return &channelRepo{db: tx}
}

func (r *channelRepo) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	return getOne[model.Channel](ctx, r.db, `SELECT * FROM channels WHERE id = $1`, id)
}

func (r *channelRepo) FindAll(ctx context.Context, limit, offset int) ([]model.Channel, error) {
	channels := []model.Channel{}
	err := r.db.SelectContext(ctx, &channels, `
		SELECT * FROM channels
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return channels, err
}

func (r *channelRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM channels`)
	return count, err
}

func (r *channelRepo) Create(ctx context.Context, params model.CreateChannelParams) (*model.Channel, error) {
	var ch model.Channel
	err := r.db.GetContext(ctx, &ch, `
		INSERT INTO channels (id, display_name, account_identifier, status)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, uuid.NewString(), params.DisplayName, params.AccountIdentifier, model.ChannelStatusDisconnected)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *channelRepo) Update(ctx context.Context, id string, params model.UpdateChannelParams) (*model.Channel, error) {
	return getOne[model.Channel](ctx, r.db, `
		UPDATE channels SET
			display_name = COALESCE($2, display_name),
			account_identifier = COALESCE($3, account_identifier),
			updated_at = $4
		WHERE id = $1
		RETURNING *
	`, id, params.DisplayName, params.AccountIdentifier, time.Now())
}

// UpdateStatus leaves last_active_at untouched when lastActiveAt is nil.
func (r *channelRepo) UpdateStatus(ctx context.Context, id string, status model.ChannelStatus, lastActiveAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE channels SET
			status = $2,
			last_active_at = COALESCE($3, last_active_at),
			updated_at = $4
		WHERE id = $1
	`, id, status, lastActiveAt, time.Now())
	return err
}

// ResetStatuses marks every channel disconnected. Used at startup, when no
// agent link exists yet.
func (r *channelRepo) ResetStatuses(ctx context.Context) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `
		UPDATE channels SET
			status = 'disconnected',
			updated_at = NOW()
		WHERE status <> 'disconnected'
	`))
}

func (r *channelRepo) Delete(ctx context.Context, id string) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `DELETE FROM channels WHERE id = $1`, id))
	return n > 0, err
}
