package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openclaw/channel-session-go/internal/database"
	"github.com/openclaw/channel-session-go/internal/model"
)

type ContactRepository interface {
	CreateBatch(ctx context.Context, params []model.CreateContactParams) ([]model.ContactRecord, error)
	List(ctx context.Context, filter model.ContactFilter) ([]model.ContactRecord, int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ContactRepository
}

type contactRepo struct {
	db database.DBTX
}

func NewContactRepository(db *sqlx.DB) ContactRepository {
	return &contactRepo{db: db}
}

func (r *contactRepo) WithTx(tx *sqlx.Tx) ContactRepository {
	return &contactRepo{db: tx}
}

func (r *contactRepo) CreateBatch(ctx context.Context, params []model.CreateContactParams) ([]model.ContactRecord, error) {
	records := make([]model.ContactRecord, 0, len(params))
	for _, p := range params {
		var rec model.ContactRecord
		err := r.db.GetContext(ctx, &rec, `
			INSERT INTO contacts (id, account_identifier, display_name, channel_id, received_at, message)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING *
		`, uuid.NewString(), p.AccountIdentifier, p.DisplayName, p.ChannelID, p.ReceivedAt, p.Message)
		if err != nil {
			return nil, fmt.Errorf("insert contact: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// List returns one page of contacts matching filter, newest first, along with
// the total number of matches.
func (r *contactRepo) List(ctx context.Context, filter model.ContactFilter) ([]model.ContactRecord, int, error) {
	where, args := contactConditions(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM contacts`+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT * FROM contacts%s ORDER BY received_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	records := []model.ContactRecord{}
	if err := r.db.SelectContext(ctx, &records, query, append(args, filter.Limit, filter.Offset)...); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *contactRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `DELETE FROM contacts WHERE received_at < $1`, cutoff))
}

func contactConditions(filter model.ContactFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(account_identifier ILIKE $%d OR display_name ILIKE $%d OR message ILIKE $%d)", n, n, n))
	}
	if filter.ChannelID != "" {
		add("channel_id = $%d", filter.ChannelID)
	}
	if filter.From != nil {
		add("received_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("received_at <= $%d", *filter.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
