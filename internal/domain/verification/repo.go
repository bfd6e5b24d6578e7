package verification

import (
	"context"

	"github.com/google/uuid"
)

// ItemRepository persists verification items.
type ItemRepository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	// TransitionFromUnverified applies the item's new status, reviewer and
	// timestamp only while the stored status is still UNVERIFIED. It reports
	// false when the item was already terminal, leaving it untouched.
	TransitionFromUnverified(ctx context.Context, item *Item) (bool, error)
	ListPending(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Item, int, error)
}
