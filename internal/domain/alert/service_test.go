package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelog/carelog/internal/platform/crypto"
)

type mockRepo struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*Alert
}

func newMockRepo() *mockRepo {
	return &mockRepo{alerts: make(map[uuid.UUID]*Alert)}
}

func (m *mockRepo) Create(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.alerts[a.ID] = &c
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert: %s not found", id)
	}
	c := *a
	return &c, nil
}

func (m *mockRepo) ResolveFromOpen(_ context.Context, a *Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.alerts[a.ID]
	if !ok || stored.Status != StatusOpen {
		return false, nil
	}
	stored.Status = StatusResolved
	stored.ResolvedBy = a.ResolvedBy
	stored.ResolvedAt = a.ResolvedAt
	stored.Note = a.Note
	return true, nil
}

func (m *mockRepo) List(_ context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]*Alert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.alerts {
		if a.PatientID != patientID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func newTestService(t *testing.T) (*Service, *mockRepo, *crypto.Encryptor) {
	t.Helper()
	enc, err := crypto.NewEncryptor(bytes.Repeat([]byte{0x33}, 32))
	if err != nil {
		t.Fatal(err)
	}
	repo := newMockRepo()
	return NewService(repo, enc, zerolog.Nop()), repo, enc
}

func TestRaise_SealsMessageAtRest(t *testing.T) {
	svc, repo, enc := newTestService(t)
	pid := uuid.New()

	a, err := svc.Raise(context.Background(), pid, KindEscalation, SeverityCritical,
		"crushing chest pain reported", "utterance")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != StatusOpen {
		t.Errorf("new alert status = %s, want OPEN", a.Status)
	}
	if a.Message != "crushing chest pain reported" {
		t.Errorf("returned message = %q, want plaintext", a.Message)
	}

	stored := repo.alerts[a.ID]
	if stored.Message == "crushing chest pain reported" {
		t.Fatal("message stored in plaintext")
	}
	plaintext, err := enc.Decrypt(stored.Message)
	if err != nil {
		t.Fatalf("stored message is not a valid envelope: %v", err)
	}
	if plaintext != "crushing chest pain reported" {
		t.Errorf("stored envelope opens to %q", plaintext)
	}
}

func TestRaise_RejectsUnknownSeverity(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Raise(context.Background(), uuid.New(), KindEscalation, "PANIC", "msg", "x"); err == nil {
		t.Fatal("expected error for unknown severity")
	}
}

func TestResolve_OpenBecomesResolved(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Raise(ctx, uuid.New(), KindLabThreshold, SeverityHigh, "BNP above limit", "labs")
	if err != nil {
		t.Fatal(err)
	}

	resolved, err := svc.Resolve(ctx, a.ID, "dr-lee", "called patient")
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != StatusResolved {
		t.Errorf("status = %s, want RESOLVED", resolved.Status)
	}
	if resolved.ResolvedBy == nil || *resolved.ResolvedBy != "dr-lee" {
		t.Error("resolver not recorded")
	}
	if resolved.Note == nil || *resolved.Note != "called patient" {
		t.Error("note not recorded")
	}
	if resolved.Severity != SeverityHigh {
		t.Errorf("severity mutated to %s on resolve", resolved.Severity)
	}
	if repo.alerts[a.ID].Status != StatusResolved {
		t.Error("store not updated")
	}
}

func TestResolve_ResolvedIsTerminal(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Raise(ctx, uuid.New(), KindEscalation, SeverityHigh, "shortness of breath", "utterance")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Resolve(ctx, a.ID, "dr-lee", ""); err != nil {
		t.Fatal(err)
	}

	_, err = svc.Resolve(ctx, a.ID, "dr-patel", "second attempt")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if got := repo.alerts[a.ID].ResolvedBy; got == nil || *got != "dr-lee" {
		t.Error("original resolution overwritten")
	}
}

func TestResolve_LostRaceIsConflict(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Raise(ctx, uuid.New(), KindEscalation, SeverityHigh, "dizziness", "utterance")
	if err != nil {
		t.Fatal(err)
	}

	// Another resolver slips in between the read and the conditional update.
	repo.alerts[a.ID].Status = StatusResolved

	var conflict *ConflictError
	if _, err := svc.Resolve(ctx, a.ID, "dr-lee", ""); !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestList_FiltersByStatusAndDecrypts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	pid := uuid.New()

	open, err := svc.Raise(ctx, pid, KindEscalation, SeverityCritical, "chest pain", "utterance")
	if err != nil {
		t.Fatal(err)
	}
	closed, err := svc.Raise(ctx, pid, KindLabThreshold, SeverityHigh, "INR high", "labs")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Resolve(ctx, closed.ID, "dr-lee", ""); err != nil {
		t.Fatal(err)
	}

	alerts, total, err := svc.List(ctx, pid, StatusOpen, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(alerts) != 1 {
		t.Fatalf("open alerts = %d (total %d), want 1", len(alerts), total)
	}
	if alerts[0].ID != open.ID {
		t.Error("wrong alert listed")
	}
	if alerts[0].Message != "chest pain" {
		t.Errorf("message = %q, want decrypted plaintext", alerts[0].Message)
	}

	if _, _, err := svc.List(ctx, pid, "WEIRD", 20, 0); err == nil {
		t.Error("expected error for unknown status filter")
	}
}

func TestSeverityOrdering(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Error("CRITICAL should be at least HIGH")
	}
	if SeverityMedium.AtLeast(SeverityHigh) {
		t.Error("MEDIUM should not reach HIGH")
	}
	if Max(SeverityLow, SeverityCritical) != SeverityCritical {
		t.Error("Max should pick the more urgent severity")
	}
}
