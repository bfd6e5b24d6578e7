package record

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carelog/carelog/internal/platform/crypto"
)

// Service runs merges under the per-patient lock and enforces
// encryption-at-rest for entry values: plaintext exists only in memory.
type Service struct {
	repo   SectionRepository
	enc    *crypto.Encryptor
	locker Locker
	merger *Merger
}

// NewService wires the record service.
func NewService(repo SectionRepository, enc *crypto.Encryptor, locker Locker, rollingCap int) *Service {
	return &Service{
		repo:   repo,
		enc:    enc,
		locker: locker,
		merger: NewMerger(rollingCap),
	}
}

// ApplyFindings merges the findings into the patient's sections atomically:
// it validates up front, then reads, merges and writes inside the patient
// lock. On any error nothing is persisted. It returns the change summary and
// the post-merge lab entries (plaintext) for threshold evaluation.
func (s *Service) ApplyFindings(ctx context.Context, patientID uuid.UUID, findings []Finding, now time.Time) (*ChangeSummary, []Entry, error) {
	for i := range findings {
		if err := findings[i].Validate(); err != nil {
			return nil, nil, err
		}
	}

	var summary *ChangeSummary
	var labs []Entry
	err := s.locker.WithPatientLock(ctx, patientID, func(ctx context.Context) error {
		var err error
		summary, labs, err = s.apply(ctx, patientID, findings, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return summary, labs, nil
}

// ApplyFindingsLocked is ApplyFindings for callers that already hold the
// patient lock and want the merge inside their transaction.
func (s *Service) ApplyFindingsLocked(ctx context.Context, patientID uuid.UUID, findings []Finding, now time.Time) (*ChangeSummary, []Entry, error) {
	for i := range findings {
		if err := findings[i].Validate(); err != nil {
			return nil, nil, err
		}
	}
	return s.apply(ctx, patientID, findings, now)
}

func (s *Service) apply(ctx context.Context, patientID uuid.UUID, findings []Finding, now time.Time) (*ChangeSummary, []Entry, error) {
	sections, err := s.repo.GetAll(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.openSections(sections); err != nil {
		return nil, nil, err
	}

	summary, err := s.merger.Merge(sections, findings, now)
	if err != nil {
		return nil, nil, err
	}

	labs := append([]Entry(nil), sections[SectionLabs].Entries...)

	for _, kind := range summary.ChangedSections() {
		sealed, err := s.sealSection(sections[kind])
		if err != nil {
			return nil, nil, err
		}
		if err := s.repo.Put(ctx, sealed); err != nil {
			return nil, nil, err
		}
	}
	return summary, labs, nil
}

// GetSections returns the patient's sections with entry values decrypted.
// A value that fails to open propagates a DecryptionError; it is never
// collapsed to an empty string.
func (s *Service) GetSections(ctx context.Context, patientID uuid.UUID) (map[SectionKind]*Section, error) {
	sections, err := s.repo.GetAll(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.openSections(sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// sealSection returns a copy with every entry value encrypted.
func (s *Service) sealSection(section *Section) (*Section, error) {
	sealed := *section
	sealed.Entries = make([]Entry, len(section.Entries))
	for i, e := range section.Entries {
		token, err := s.enc.Encrypt(e.Value)
		if err != nil {
			return nil, fmt.Errorf("record: seal entry %s: %w", e.ID, err)
		}
		e.Value = token
		sealed.Entries[i] = e
	}
	return &sealed, nil
}

func (s *Service) openSections(sections map[SectionKind]*Section) error {
	for _, section := range sections {
		for i := range section.Entries {
			plaintext, err := s.enc.Decrypt(section.Entries[i].Value)
			if err != nil {
				return fmt.Errorf("record: open entry %s: %w", section.Entries[i].ID, err)
			}
			section.Entries[i].Value = plaintext
		}
	}
	return nil
}
