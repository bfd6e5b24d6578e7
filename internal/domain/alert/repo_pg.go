package alert

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

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the PostgreSQL alert repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const alertCols = `id, patient_id, kind, severity, status, message, source,
	resolved_by, resolved_at, note, created_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.PatientID, &a.Kind, &a.Severity, &a.Status,
		&a.Message, &a.Source, &a.ResolvedBy, &a.ResolvedAt, &a.Note, &a.CreatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Alert) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO alert
			(id, patient_id, kind, severity, status, message, source, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.PatientID, a.Kind, a.Severity, a.Status, a.Message, a.Source, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("alert: create: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	a, err := scanAlert(r.conn(ctx).QueryRow(ctx,
		`SELECT `+alertCols+` FROM alert WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("alert: %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("alert: get: %w", err)
	}
	return a, nil
}

// ResolveFromOpen uses a conditional UPDATE so two concurrent resolvers
// cannot both win. Severity and message are immutable after creation.
func (r *repoPG) ResolveFromOpen(ctx context.Context, a *Alert) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE alert
		SET status = 'RESOLVED', resolved_by = $2, resolved_at = $3, note = $4
		WHERE id = $1 AND status = 'OPEN'`,
		a.ID, a.ResolvedBy, a.ResolvedAt, a.Note)
	if err != nil {
		return false, fmt.Errorf("alert: resolve: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) List(ctx context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]*Alert, int, error) {
	where := `WHERE patient_id = $1`
	args := []interface{}{patientID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM alert `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("alert: count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM alert %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, alertCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("alert: list: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("alert: scan: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, total, rows.Err()
}
