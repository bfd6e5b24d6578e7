package record

import (
	"context"
	"encoding/json"
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

type sectionRepoPG struct{ pool *pgxpool.Pool }

// NewSectionRepoPG creates the PostgreSQL section repository.
func NewSectionRepoPG(pool *pgxpool.Pool) SectionRepository {
	return &sectionRepoPG{pool: pool}
}

func (r *sectionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *sectionRepoPG) Get(ctx context.Context, patientID uuid.UUID, kind SectionKind) (*Section, error) {
	var entriesJSON []byte
	s := NewSection(patientID, kind)
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT entries, updated_at FROM record_section
		WHERE patient_id = $1 AND kind = $2`, patientID, kind).
		Scan(&entriesJSON, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record: get section %s: %w", kind, err)
	}
	if err := json.Unmarshal(entriesJSON, &s.Entries); err != nil {
		return nil, fmt.Errorf("record: decode section %s: %w", kind, err)
	}
	return s, nil
}

func (r *sectionRepoPG) GetAll(ctx context.Context, patientID uuid.UUID) (map[SectionKind]*Section, error) {
	sections := make(map[SectionKind]*Section, len(AllSectionKinds()))
	for _, kind := range AllSectionKinds() {
		sections[kind] = NewSection(patientID, kind)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT kind, entries, updated_at FROM record_section
		WHERE patient_id = $1`, patientID)
	if err != nil {
		return nil, fmt.Errorf("record: get sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind SectionKind
		var entriesJSON []byte
		s := NewSection(patientID, "")
		if err := rows.Scan(&kind, &entriesJSON, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("record: scan section: %w", err)
		}
		s.Kind = kind
		if err := json.Unmarshal(entriesJSON, &s.Entries); err != nil {
			return nil, fmt.Errorf("record: decode section %s: %w", kind, err)
		}
		sections[kind] = s
	}
	return sections, rows.Err()
}

func (r *sectionRepoPG) Put(ctx context.Context, s *Section) error {
	entriesJSON, err := json.Marshal(s.Entries)
	if err != nil {
		return fmt.Errorf("record: encode section %s: %w", s.Kind, err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO record_section (patient_id, kind, entries, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id, kind)
		DO UPDATE SET entries = EXCLUDED.entries, updated_at = EXCLUDED.updated_at`,
		s.PatientID, s.Kind, entriesJSON, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("record: put section %s: %w", s.Kind, err)
	}
	return nil
}
