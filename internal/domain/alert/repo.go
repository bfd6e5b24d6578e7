package alert

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists alerts.
type Repository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	// ResolveFromOpen applies the alert's resolution fields only while the
	// stored status is still OPEN. It reports false when the alert was
	// already resolved, leaving it untouched.
	ResolveFromOpen(ctx context.Context, a *Alert) (bool, error)
	// List returns the patient's alerts, newest first. An empty status
	// matches all lifecycle states.
	List(ctx context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]*Alert, int, error)
}
