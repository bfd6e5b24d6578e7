package record

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carelog/carelog/internal/platform/crypto"
)

type mockSectionRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]map[SectionKind]*Section
	puts  int
}

func newMockSectionRepo() *mockSectionRepo {
	return &mockSectionRepo{store: make(map[uuid.UUID]map[SectionKind]*Section)}
}

func (m *mockSectionRepo) Get(_ context.Context, pid uuid.UUID, kind SectionKind) (*Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.store[pid][kind]; ok {
		return copySection(s), nil
	}
	return NewSection(pid, kind), nil
}

func (m *mockSectionRepo) GetAll(_ context.Context, pid uuid.UUID) (map[SectionKind]*Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sections := make(map[SectionKind]*Section)
	for _, kind := range AllSectionKinds() {
		if s, ok := m.store[pid][kind]; ok {
			sections[kind] = copySection(s)
		} else {
			sections[kind] = NewSection(pid, kind)
		}
	}
	return sections, nil
}

func (m *mockSectionRepo) Put(_ context.Context, s *Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.store[s.PatientID] == nil {
		m.store[s.PatientID] = make(map[SectionKind]*Section)
	}
	m.store[s.PatientID][s.Kind] = copySection(s)
	return nil
}

func copySection(s *Section) *Section {
	c := *s
	c.Entries = append([]Entry(nil), s.Entries...)
	return &c
}

// serialLocker serializes all work on one mutex, standing in for the
// per-patient advisory lock.
type serialLocker struct{ mu sync.Mutex }

func (l *serialLocker) WithPatientLock(ctx context.Context, _ uuid.UUID, fn func(context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

func newTestService(t *testing.T) (*Service, *mockSectionRepo, *crypto.Encryptor) {
	t.Helper()
	enc, err := crypto.NewEncryptor(bytes.Repeat([]byte{0x11}, 32))
	if err != nil {
		t.Fatal(err)
	}
	repo := newMockSectionRepo()
	return NewService(repo, enc, &serialLocker{}, 10), repo, enc
}

func TestApplyFindings_EncryptsAtRest(t *testing.T) {
	svc, repo, enc := newTestService(t)
	pid := uuid.New()

	_, _, err := svc.ApplyFindings(context.Background(), pid, []Finding{
		{Kind: FindingLab, Name: "BNP", Value: "450", Unit: "pg/mL", Date: dayPtr("2026-02-25")},
	}, day("2026-02-25"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	stored := repo.store[pid][SectionLabs].Entries[0]
	if stored.Value == "450" {
		t.Fatal("entry value stored in plaintext")
	}
	plaintext, err := enc.Decrypt(stored.Value)
	if err != nil {
		t.Fatalf("stored value is not a valid envelope: %v", err)
	}
	if plaintext != "450" {
		t.Errorf("stored envelope opens to %q, want 450", plaintext)
	}
}

func TestApplyFindings_RoundTripThroughStore(t *testing.T) {
	svc, _, _ := newTestService(t)
	pid := uuid.New()
	ctx := context.Background()

	if _, _, err := svc.ApplyFindings(ctx, pid, []Finding{
		{Kind: FindingLab, Name: "INR", Value: "2.1", Date: dayPtr("2026-02-24")},
	}, day("2026-02-24")); err != nil {
		t.Fatal(err)
	}

	summary, labs, err := svc.ApplyFindings(ctx, pid, []Finding{
		{Kind: FindingLab, Name: "BNP", Value: "450", Unit: "pg/mL", Date: dayPtr("2026-02-25")},
		{Kind: FindingLab, Name: "Potassium", Value: "4.2", Unit: "mEq/L", Date: dayPtr("2026-02-25")},
	}, day("2026-02-25"))
	if err != nil {
		t.Fatal(err)
	}
	if len(labs) != 3 {
		t.Fatalf("expected 3 merged lab entries, got %d", len(labs))
	}
	plaintexts := map[string]string{"BNP": "450", "Potassium": "4.2", "INR": "2.1"}
	for _, e := range labs {
		if want := plaintexts[e.Name]; e.Value != want {
			t.Errorf("returned lab %s = %q, want plaintext %q", e.Name, e.Value, want)
		}
	}
	if got := summary.ChangedSections(); len(got) != 1 || got[0] != SectionLabs {
		t.Errorf("unexpected changed sections: %v", got)
	}

	sections, err := svc.GetSections(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	if got := sections[SectionLabs].Entries[0].Value; got != "450" && got != "4.2" {
		t.Errorf("decrypted read returned %q", got)
	}
}

func TestApplyFindings_InvalidFindingWritesNothing(t *testing.T) {
	svc, repo, _ := newTestService(t)
	pid := uuid.New()

	_, _, err := svc.ApplyFindings(context.Background(), pid, []Finding{
		{Kind: FindingLab, Name: "BNP", Value: "450"},
		{Kind: "telepathy", Name: "x"},
	}, time.Now())
	if err == nil {
		t.Fatal("expected validation error")
	}
	if repo.puts != 0 {
		t.Errorf("expected no writes, got %d", repo.puts)
	}
}

func TestApplyFindings_OnlyChangedSectionsWritten(t *testing.T) {
	svc, repo, _ := newTestService(t)
	pid := uuid.New()

	if _, _, err := svc.ApplyFindings(context.Background(), pid, []Finding{
		{Kind: FindingCondition, Name: "hypertension"},
	}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if repo.puts != 1 {
		t.Errorf("expected exactly one section written, got %d", repo.puts)
	}
}

func TestGetSections_UndecryptableIsError(t *testing.T) {
	svc, repo, _ := newTestService(t)
	pid := uuid.New()

	repo.store[pid] = map[SectionKind]*Section{
		SectionLabs: {
			PatientID: pid, Kind: SectionLabs,
			Entries: []Entry{{ID: uuid.New(), Name: "BNP", Value: "garbage-not-an-envelope"}},
		},
	}

	if _, err := svc.GetSections(context.Background(), pid); err == nil {
		t.Fatal("undecryptable content must surface as an error, never an empty value")
	}
}
