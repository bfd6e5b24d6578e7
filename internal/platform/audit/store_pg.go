package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore appends events to the audit_event table. The table is append-only;
// no update or delete path exists in this component. Retention is handled
// out-of-band.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PGStore backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Record inserts the event.
func (s *PGStore) Record(ctx context.Context, e *Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_event (
			id, actor, actor_role, organization, patient_id,
			action, resource_type, resource_id,
			network_address, session_id, details, recorded
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, e.Actor, e.ActorRole, e.Organization, e.PatientID,
		e.Action, e.ResourceType, e.ResourceID,
		e.NetworkAddr, e.SessionID, e.Details, e.Recorded)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// ListByPatient returns events for one patient, newest first.
func (s *PGStore) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Event, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_event WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit: count events: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, actor, actor_role, organization, patient_id,
			action, resource_type, resource_id,
			network_address, session_id, details, recorded
		FROM audit_event
		WHERE patient_id = $1
		ORDER BY recorded DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: list events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Actor, &e.ActorRole, &e.Organization, &e.PatientID,
			&e.Action, &e.ResourceType, &e.ResourceID,
			&e.NetworkAddr, &e.SessionID, &e.Details, &e.Recorded); err != nil {
			return nil, 0, fmt.Errorf("audit: scan event: %w", err)
		}
		events = append(events, &e)
	}
	return events, total, rows.Err()
}
