package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/channel-session-go/internal/database"
	"github.com/openclaw/channel-session-go/internal/model"
)

// SessionRepository persists live sessions and serves as the registry's store.
type SessionRepository interface {
	Load(ctx context.Context, channelID string) (*model.Session, error)
	Save(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context, channelID string) error
	DeleteAll(ctx context.Context) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) Load(ctx context.Context, channelID string) (*model.Session, error) {
	return getOne[model.Session](ctx, r.db, `
		SELECT * FROM sessions WHERE channel_id = $1
	`, channelID)
}

func (r *sessionRepo) Save(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (channel_id, account_identifier, status, last_active_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel_id) DO UPDATE SET
			account_identifier = EXCLUDED.account_identifier,
			status = EXCLUDED.status,
			last_active_at = EXCLUDED.last_active_at,
			updated_at = EXCLUDED.updated_at
	`, session.ChannelID, session.AccountIdentifier, session.Status, session.LastActiveAt, session.UpdatedAt)
	return err
}

func (r *sessionRepo) Delete(ctx context.Context, channelID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE channel_id = $1`, channelID)
	return err
}

// DeleteAll clears sessions left over from a previous process.
func (r *sessionRepo) DeleteAll(ctx context.Context) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `DELETE FROM sessions`))
}
