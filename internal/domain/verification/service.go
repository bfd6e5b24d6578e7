package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carelog/carelog/internal/platform/crypto"
)

// Service is the verification ledger. Summaries are encrypted before they
// reach the repository and decrypted on the way out.
type Service struct {
	repo   ItemRepository
	enc    *crypto.Encryptor
	policy ConfidencePolicy
}

// NewService wires the ledger. A nil policy falls back to the default table.
func NewService(repo ItemRepository, enc *crypto.Encryptor, policy ConfidencePolicy) *Service {
	if policy == nil {
		policy = DefaultConfidencePolicy()
	}
	return &Service{repo: repo, enc: enc, policy: policy}
}

// Register creates an UNVERIFIED item for a non-clinician data point.
// Initial confidence comes from the policy table.
func (s *Service) Register(ctx context.Context, patientID uuid.UUID, resourceType, summary string, source SourceType) (*Item, error) {
	if source == SourceClinician {
		return nil, fmt.Errorf("verification: clinician entries are trusted at entry and not registered")
	}
	if resourceType == "" {
		return nil, fmt.Errorf("verification: resource type is required")
	}

	sealed, err := s.enc.Encrypt(summary)
	if err != nil {
		return nil, fmt.Errorf("verification: seal summary: %w", err)
	}

	item := &Item{
		ID:           uuid.New(),
		PatientID:    patientID,
		ResourceType: resourceType,
		SourceType:   source,
		Confidence:   s.policy.Confidence(source),
		Status:       StatusUnverified,
		Summary:      sealed,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}

	item.Summary = summary
	return item, nil
}

// Transition moves an UNVERIFIED item to its terminal status. A transition
// attempt on a terminal item returns ConflictError and changes nothing;
// the conditional repository update closes the race between two reviewers.
func (s *Service) Transition(ctx context.Context, itemID uuid.UUID, action Action, reviewer string) (*Item, error) {
	if reviewer == "" {
		return nil, fmt.Errorf("verification: reviewer is required")
	}

	var target Status
	switch action {
	case ActionVerify:
		target = StatusVerified
	case ActionDispute:
		target = StatusDisputed
	default:
		return nil, fmt.Errorf("verification: unknown action %q", action)
	}

	item, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status.Terminal() {
		return nil, &ConflictError{ItemID: itemID, Status: item.Status}
	}

	now := time.Now().UTC()
	item.Status = target
	item.VerifiedBy = &reviewer
	item.VerifiedAt = &now

	ok, err := s.repo.TransitionFromUnverified(ctx, item)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race: someone else finished the transition first.
		current, err := s.repo.GetByID(ctx, itemID)
		if err != nil {
			return nil, err
		}
		return nil, &ConflictError{ItemID: itemID, Status: current.Status}
	}

	return s.open(item)
}

// ListPending returns the patient's UNVERIFIED items, oldest first, with
// summaries decrypted.
func (s *Service) ListPending(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Item, int, error) {
	items, total, err := s.repo.ListPending(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for i, item := range items {
		opened, err := s.open(item)
		if err != nil {
			return nil, 0, err
		}
		items[i] = opened
	}
	return items, total, nil
}

func (s *Service) open(item *Item) (*Item, error) {
	plaintext, err := s.enc.Decrypt(item.Summary)
	if err != nil {
		return nil, fmt.Errorf("verification: open summary of %s: %w", item.ID, err)
	}
	opened := *item
	opened.Summary = plaintext
	return &opened, nil
}
