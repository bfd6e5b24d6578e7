package db

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithPatientLock runs fn inside a transaction holding the per-patient
// advisory lock. Concurrent merges against the same patient serialize here;
// merges on different patients proceed in parallel. The lock is transactional
// (pg_advisory_xact_lock) so it releases on commit or rollback, including
// when fn's context is cancelled mid-merge.
func WithPatientLock(ctx context.Context, pool *pgxpool.Pool, patientID uuid.UUID, fn func(ctx context.Context) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin patient transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, PatientLockKey(patientID)); err != nil {
		return fmt.Errorf("acquire patient lock: %w", err)
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit patient transaction: %w", err)
	}
	return nil
}

// PGLocker adapts WithPatientLock to the per-domain Locker interfaces.
type PGLocker struct {
	Pool *pgxpool.Pool
}

func (l PGLocker) WithPatientLock(ctx context.Context, patientID uuid.UUID, fn func(ctx context.Context) error) error {
	return WithPatientLock(ctx, l.Pool, patientID, fn)
}

// PatientLockKey maps a patient id onto the 64-bit advisory lock keyspace.
func PatientLockKey(patientID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(patientID[:]) //nolint:errcheck // fnv never errors
	return int64(h.Sum64())
}
