package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelog/carelog/internal/platform/crypto"
)

// Service manages the alert lifecycle. Messages are encrypted before they
// reach the repository and decrypted on the way out.
type Service struct {
	repo   Repository
	enc    *crypto.Encryptor
	logger zerolog.Logger
}

func NewService(repo Repository, enc *crypto.Encryptor, logger zerolog.Logger) *Service {
	return &Service{repo: repo, enc: enc, logger: logger}
}

// Raise creates an OPEN alert. Severity is fixed at creation and never
// mutates afterwards.
func (s *Service) Raise(ctx context.Context, patientID uuid.UUID, kind Kind, severity Severity, message, source string) (*Alert, error) {
	if !severity.Valid() {
		return nil, fmt.Errorf("alert: unknown severity %q", severity)
	}
	if message == "" {
		return nil, fmt.Errorf("alert: message is required")
	}

	sealed, err := s.enc.Encrypt(message)
	if err != nil {
		return nil, fmt.Errorf("alert: seal message: %w", err)
	}

	a := &Alert{
		ID:        uuid.New(),
		PatientID: patientID,
		Kind:      kind,
		Severity:  severity,
		Status:    StatusOpen,
		Message:   sealed,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Warn().
		Str("alert_id", a.ID.String()).
		Str("patient_id", patientID.String()).
		Str("kind", string(kind)).
		Str("severity", string(severity)).
		Msg("alert raised")

	a.Message = message
	return a, nil
}

// Resolve closes an OPEN alert. Resolving an already-resolved alert returns
// ConflictError; the original resolution is preserved.
func (s *Service) Resolve(ctx context.Context, alertID uuid.UUID, resolver, note string) (*Alert, error) {
	if resolver == "" {
		return nil, fmt.Errorf("alert: resolver is required")
	}

	a, err := s.repo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusResolved {
		return nil, &ConflictError{AlertID: alertID}
	}

	now := time.Now().UTC()
	a.Status = StatusResolved
	a.ResolvedBy = &resolver
	a.ResolvedAt = &now
	if note != "" {
		a.Note = &note
	}

	ok, err := s.repo.ResolveFromOpen(ctx, a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ConflictError{AlertID: alertID}
	}

	return s.open(a)
}

// List returns the patient's alerts, newest first, with messages decrypted.
func (s *Service) List(ctx context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]*Alert, int, error) {
	if status != "" && status != StatusOpen && status != StatusResolved {
		return nil, 0, fmt.Errorf("alert: unknown status %q", status)
	}
	alerts, total, err := s.repo.List(ctx, patientID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for i, a := range alerts {
		opened, err := s.open(a)
		if err != nil {
			return nil, 0, err
		}
		alerts[i] = opened
	}
	return alerts, total, nil
}

func (s *Service) open(a *Alert) (*Alert, error) {
	plaintext, err := s.enc.Decrypt(a.Message)
	if err != nil {
		return nil, fmt.Errorf("alert: open message of %s: %w", a.ID, err)
	}
	opened := *a
	opened.Message = plaintext
	return &opened, nil
}
