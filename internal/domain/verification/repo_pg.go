package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelog/carelog/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type itemRepoPG struct{ pool *pgxpool.Pool }

// NewItemRepoPG creates the PostgreSQL verification item repository.
func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository {
	return &itemRepoPG{pool: pool}
}

func (r *itemRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const itemCols = `id, patient_id, resource_type, source_type, confidence,
	status, summary, verified_by, verified_at, created_at`

func scanItem(row pgx.Row) (*Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.PatientID, &item.ResourceType, &item.SourceType,
		&item.Confidence, &item.Status, &item.Summary,
		&item.VerifiedBy, &item.VerifiedAt, &item.CreatedAt)
	return &item, err
}

func (r *itemRepoPG) Create(ctx context.Context, item *Item) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO verification_item
			(id, patient_id, resource_type, source_type, confidence, status, summary, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		item.ID, item.PatientID, item.ResourceType, item.SourceType,
		item.Confidence, item.Status, item.Summary, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("verification: create item: %w", err)
	}
	return nil
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	item, err := scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM verification_item WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("verification: item %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("verification: get item: %w", err)
	}
	return item, nil
}

// TransitionFromUnverified relies on the conditional UPDATE so that two
// concurrent reviewers cannot both win: only one row version moves out of
// UNVERIFIED.
func (r *itemRepoPG) TransitionFromUnverified(ctx context.Context, item *Item) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE verification_item
		SET status = $2, verified_by = $3, verified_at = $4
		WHERE id = $1 AND status = 'UNVERIFIED'`,
		item.ID, item.Status, item.VerifiedBy, item.VerifiedAt)
	if err != nil {
		return false, fmt.Errorf("verification: transition item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *itemRepoPG) ListPending(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Item, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM verification_item
		WHERE patient_id = $1 AND status = 'UNVERIFIED'`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("verification: count pending: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+itemCols+` FROM verification_item
		WHERE patient_id = $1 AND status = 'UNVERIFIED'
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("verification: list pending: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("verification: scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}
