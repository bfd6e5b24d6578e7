package record

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	d := day(s)
	return &d
}

func emptySections(patientID uuid.UUID) map[SectionKind]*Section {
	sections := make(map[SectionKind]*Section)
	for _, kind := range AllSectionKinds() {
		sections[kind] = NewSection(patientID, kind)
	}
	return sections
}

func entryNames(s *Section) []string {
	names := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		names[i] = e.Name
	}
	return names
}

func TestMerge_ScenarioLabsOrdering(t *testing.T) {
	// A Labs section holding a 2026-02-24 INR entry receives BNP and
	// Potassium dated 2026-02-25: 3 entries total, the newest two first.
	pid := uuid.New()
	sections := emptySections(pid)
	sections[SectionLabs].Entries = []Entry{{
		ID: uuid.New(), Name: "INR", Value: "2.1", EffectiveDate: day("2026-02-24"), CreatedAt: day("2026-02-24"),
	}}

	findings := []Finding{
		{Kind: FindingLab, Name: "BNP", Value: "450", Unit: "pg/mL", Date: dayPtr("2026-02-25")},
		{Kind: FindingLab, Name: "Potassium", Value: "4.2", Unit: "mEq/L", Date: dayPtr("2026-02-25")},
	}

	summary, err := NewMerger(10).Merge(sections, findings, day("2026-02-25"))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	labs := sections[SectionLabs]
	if len(labs.Entries) != 3 {
		t.Fatalf("expected 3 lab entries, got %d: %v", len(labs.Entries), entryNames(labs))
	}
	if labs.Entries[2].Name != "INR" {
		t.Errorf("expected INR ranked last, got order %v", entryNames(labs))
	}
	for _, e := range labs.Entries[:2] {
		if e.Name != "BNP" && e.Name != "Potassium" {
			t.Errorf("expected BNP/Potassium on top, got order %v", entryNames(labs))
		}
	}
	if !summary.Changed[SectionLabs] || summary.Appended != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	pid := uuid.New()
	sections := emptySections(pid)
	findings := []Finding{
		{Kind: FindingLab, Name: "BNP", Value: "450", Unit: "pg/mL", Date: dayPtr("2026-02-25")},
		{Kind: FindingCondition, Name: "atrial fibrillation", Date: dayPtr("2026-02-20")},
	}
	now := day("2026-02-25")
	merger := NewMerger(10)

	if _, err := merger.Merge(sections, findings, now); err != nil {
		t.Fatal(err)
	}
	first := len(sections[SectionLabs].Entries) + len(sections[SectionMedicalHistory].Entries)

	summary, err := merger.Merge(sections, findings, now)
	if err != nil {
		t.Fatal(err)
	}
	second := len(sections[SectionLabs].Entries) + len(sections[SectionMedicalHistory].Entries)

	if first != second {
		t.Errorf("second merge changed entry count: %d -> %d", first, second)
	}
	if summary.Appended != 0 || summary.Replaced != 0 {
		t.Errorf("second identical merge should be a no-op, got %+v", summary)
	}
}

func TestMerge_ValueReplaceOnSameTestAndDate(t *testing.T) {
	pid := uuid.New()
	sections := emptySections(pid)
	merger := NewMerger(10)
	now := day("2026-02-25")

	if _, err := merger.Merge(sections, []Finding{
		{Kind: FindingLab, Name: "Potassium", Value: "4.2", Unit: "mEq/L", Date: dayPtr("2026-02-25")},
	}, now); err != nil {
		t.Fatal(err)
	}
	summary, err := merger.Merge(sections, []Finding{
		{Kind: FindingLab, Name: "potassium", Value: "4.8", Unit: "mEq/L", Date: dayPtr("2026-02-25")},
	}, now)
	if err != nil {
		t.Fatal(err)
	}

	labs := sections[SectionLabs]
	if len(labs.Entries) != 1 {
		t.Fatalf("expected value replace, not duplicate: %v", entryNames(labs))
	}
	if labs.Entries[0].Value != "4.8" {
		t.Errorf("expected replaced value 4.8, got %s", labs.Entries[0].Value)
	}
	if summary.Replaced != 1 {
		t.Errorf("expected 1 replacement, got %+v", summary)
	}
}

func TestMerge_RollingCap(t *testing.T) {
	pid := uuid.New()
	sections := emptySections(pid)
	merger := NewMerger(10)

	var findings []Finding
	base := day("2026-01-01")
	for i := 0; i < 15; i++ {
		d := base.AddDate(0, 0, i)
		findings = append(findings, Finding{Kind: FindingLab, Name: "Glucose", Value: "100", Unit: "mg/dL", Date: &d})
	}
	if _, err := merger.Merge(sections, findings, base.AddDate(0, 0, 20)); err != nil {
		t.Fatal(err)
	}

	labs := sections[SectionLabs]
	if len(labs.Entries) != 10 {
		t.Fatalf("cap violated: %d entries", len(labs.Entries))
	}
	// Retained entries must be the 10 most recent: days 5..14, newest first.
	if !labs.Entries[0].EffectiveDate.Equal(base.AddDate(0, 0, 14)) {
		t.Errorf("newest entry wrong: %s", labs.Entries[0].EffectiveDate)
	}
	if !labs.Entries[9].EffectiveDate.Equal(base.AddDate(0, 0, 5)) {
		t.Errorf("oldest retained entry wrong: %s", labs.Entries[9].EffectiveDate)
	}
	for i := 1; i < len(labs.Entries); i++ {
		if labs.Entries[i].EffectiveDate.After(labs.Entries[i-1].EffectiveDate) {
			t.Fatal("entries not newest-first")
		}
	}
}

func TestMerge_MissingDateApproximate(t *testing.T) {
	pid := uuid.New()
	sections := emptySections(pid)
	now := day("2026-03-01")
	if _, err := NewMerger(10).Merge(sections, []Finding{
		{Kind: FindingLab, Name: "TSH", Value: "2.0", Unit: "mIU/L"},
	}, now); err != nil {
		t.Fatal(err)
	}
	e := sections[SectionLabs].Entries[0]
	if !e.ApproximateDate {
		t.Error("entry without source date must be flagged approximate")
	}
	if !e.EffectiveDate.Equal(now) {
		t.Errorf("expected processing time as date, got %s", e.EffectiveDate)
	}
}

func TestMerge_HistoryNovelty(t *testing.T) {
	pid := uuid.New()
	sections := emptySections(pid)
	merger := NewMerger(10)
	now := day("2026-03-01")

	for _, name := range []string{"Type-2 Diabetes", "type 2 diabetes", "Type 2 Diabetes."} {
		if _, err := merger.Merge(sections, []Finding{
			{Kind: FindingCondition, Name: name, Date: dayPtr("2026-02-01")},
		}, now); err != nil {
			t.Fatal(err)
		}
	}
	history := sections[SectionMedicalHistory]
	if len(history.Entries) != 1 {
		t.Errorf("normalized duplicates should not append: %v", entryNames(history))
	}
}

func TestMerge_HistoryNeverRemoves(t *testing.T) {
	pid := uuid.New()
	sections := emptySections(pid)
	merger := NewMerger(10)
	now := day("2026-03-01")

	var names []string
	for _, n := range []string{"hypertension", "asthma", "migraine", "gout"} {
		names = append(names, n)
		if _, err := merger.Merge(sections, []Finding{{Kind: FindingCondition, Name: n}}, now); err != nil {
			t.Fatal(err)
		}
	}
	if len(sections[SectionMedicalHistory].Entries) != len(names) {
		t.Errorf("history lost entries: %v", entryNames(sections[SectionMedicalHistory]))
	}
}

func TestMerge_ContradictionKeptAndFlagged(t *testing.T) {
	pid := uuid.New()
	sections := emptySections(pid)
	merger := NewMerger(10)
	now := day("2026-03-01")

	if _, err := merger.Merge(sections, []Finding{{Kind: FindingCondition, Name: "chest pain"}}, now); err != nil {
		t.Fatal(err)
	}
	summary, err := merger.Merge(sections, []Finding{{Kind: FindingSymptom, Name: "no chest pain"}}, now)
	if err != nil {
		t.Fatal(err)
	}

	history := sections[SectionMedicalHistory]
	if len(history.Entries) != 2 {
		t.Fatalf("both sides of a contradiction must be retained: %v", entryNames(history))
	}
	for _, e := range history.Entries {
		if e.ReviewFlag == nil {
			t.Errorf("entry %q not flagged for review", e.Name)
		}
	}
	if summary.Flagged == 0 {
		t.Errorf("summary missing flag count: %+v", summary)
	}
}

func TestMerge_ContradictionIsIdempotent(t *testing.T) {
	// A bundle carrying both sides of a contradiction must land both entries
	// once; replaying the identical bundle changes nothing.
	pid := uuid.New()
	sections := emptySections(pid)
	merger := NewMerger(10)
	now := day("2026-03-01")
	findings := []Finding{
		{Kind: FindingCondition, Name: "chest pain"},
		{Kind: FindingSymptom, Name: "no chest pain"},
	}

	if _, err := merger.Merge(sections, findings, now); err != nil {
		t.Fatal(err)
	}
	history := sections[SectionMedicalHistory]
	if len(history.Entries) != 2 {
		t.Fatalf("expected both sides retained once, got %v", entryNames(history))
	}

	summary, err := merger.Merge(sections, findings, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(history.Entries) != 2 {
		t.Fatalf("identical re-merge duplicated entries: %v", entryNames(history))
	}
	if summary.Appended != 0 || summary.Skipped != 2 {
		t.Errorf("identical re-merge should skip both findings, got %+v", summary)
	}
}

func TestMerge_CarePlanAddendaImmutable(t *testing.T) {
	pid := uuid.New()
	sections := emptySections(pid)
	merger := NewMerger(10)

	if _, err := merger.Merge(sections, []Finding{
		{Kind: FindingPlanItem, Name: "daily weights", Value: "call if +2kg in 3 days"},
	}, day("2026-03-01")); err != nil {
		t.Fatal(err)
	}
	originalID := sections[SectionCarePlan].Entries[0].ID
	originalValue := sections[SectionCarePlan].Entries[0].Value

	if _, err := merger.Merge(sections, []Finding{
		{Kind: FindingPlanItem, Name: "daily weights", Value: "revised: call if +1kg"},
	}, day("2026-03-05")); err != nil {
		t.Fatal(err)
	}

	plan := sections[SectionCarePlan]
	if len(plan.Entries) != 2 {
		t.Fatalf("care plan must append, never replace: %v", entryNames(plan))
	}
	if plan.Entries[0].ID != originalID || plan.Entries[0].Value != originalValue {
		t.Error("original care plan content was mutated")
	}
	if plan.Entries[1].AddendumAt == nil {
		t.Error("addendum missing timestamp")
	}
}

func TestMerge_RejectsInvalidFindingBeforeAnyChange(t *testing.T) {
	pid := uuid.New()
	sections := emptySections(pid)
	findings := []Finding{
		{Kind: FindingLab, Name: "BNP", Value: "450", Date: dayPtr("2026-02-25")},
		{Kind: "bogus", Name: "x"},
	}
	_, err := NewMerger(10).Merge(sections, findings, day("2026-02-25"))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(sections[SectionLabs].Entries) != 0 {
		t.Error("no partial changes may be applied when any finding is invalid")
	}
}
