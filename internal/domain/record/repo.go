package record

import (
	"context"

	"github.com/google/uuid"
)

// SectionRepository persists record sections keyed by patient and kind.
// Get returns an empty section when none has been stored yet.
type SectionRepository interface {
	Get(ctx context.Context, patientID uuid.UUID, kind SectionKind) (*Section, error)
	GetAll(ctx context.Context, patientID uuid.UUID) (map[SectionKind]*Section, error)
	Put(ctx context.Context, s *Section) error
}

// Locker serializes merge work per patient. The PostgreSQL implementation
// uses a transactional advisory lock; tests substitute an in-process one.
type Locker interface {
	WithPatientLock(ctx context.Context, patientID uuid.UUID, fn func(ctx context.Context) error) error
}
