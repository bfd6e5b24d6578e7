// Package record holds the longitudinal patient record sections and the
// merge engine that reconciles extracted findings into them.
package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SectionKind identifies one longitudinal record section.
type SectionKind string

const (
	SectionLabs           SectionKind = "labs"
	SectionTrends         SectionKind = "trends"
	SectionMedicalHistory SectionKind = "medical_history"
	SectionCarePlan       SectionKind = "care_plan"
)

// AllSectionKinds returns the section kinds in canonical order.
func AllSectionKinds() []SectionKind {
	return []SectionKind{SectionLabs, SectionTrends, SectionMedicalHistory, SectionCarePlan}
}

// Valid reports whether k names a known section.
func (k SectionKind) Valid() bool {
	switch k {
	case SectionLabs, SectionTrends, SectionMedicalHistory, SectionCarePlan:
		return true
	}
	return false
}

// MergeStrategy is the reconciliation behavior of a section kind. New section
// kinds pick one of these; merge logic never branches on the kind itself.
type MergeStrategy string

const (
	// StrategyRollingCapped keeps the N most recent dated entries,
	// value-replacing on a (name, date) match.
	StrategyRollingCapped MergeStrategy = "rolling_capped"
	// StrategyAppendNovel appends only entries novel under normalization and
	// never removes anything.
	StrategyAppendNovel MergeStrategy = "append_novel"
	// StrategyAppendOnly appends timestamped addenda; prior content is
	// immutable.
	StrategyAppendOnly MergeStrategy = "append_only"
)

// Strategy returns the merge strategy for the section kind.
func (k SectionKind) Strategy() MergeStrategy {
	switch k {
	case SectionLabs, SectionTrends:
		return StrategyRollingCapped
	case SectionMedicalHistory:
		return StrategyAppendNovel
	default:
		return StrategyAppendOnly
	}
}

// DefaultRollingCap is the entry cap for rolling sections.
const DefaultRollingCap = 10

// FindingKind classifies one extracted clinical fact.
type FindingKind string

const (
	FindingLab        FindingKind = "lab"
	FindingCondition  FindingKind = "condition"
	FindingProcedure  FindingKind = "procedure"
	FindingMedication FindingKind = "medication"
	FindingVitalTrend FindingKind = "vital_trend"
	FindingPlanItem   FindingKind = "plan_item"
	FindingSymptom    FindingKind = "symptom"
)

// Finding is one structured clinical fact extracted from raw text.
type Finding struct {
	Kind    FindingKind `json:"kind"`
	Name    string      `json:"name"`
	Value   string      `json:"value"`
	Unit    string      `json:"unit"`
	Date    *time.Time  `json:"date,omitempty"`
	RawText string      `json:"raw_text"`
}

// Validate rejects findings that cannot be merged.
func (f *Finding) Validate() error {
	if _, ok := f.TargetSection(); !ok {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown finding kind %q", f.Kind)}
	}
	if strings.TrimSpace(f.Name) == "" {
		return &ValidationError{Field: "name", Reason: "finding name is required"}
	}
	return nil
}

// TargetSection maps a finding kind onto the section it merges into.
func (f Finding) TargetSection() (SectionKind, bool) {
	switch f.Kind {
	case FindingLab:
		return SectionLabs, true
	case FindingVitalTrend:
		return SectionTrends, true
	case FindingCondition, FindingProcedure, FindingMedication, FindingSymptom:
		return SectionMedicalHistory, true
	case FindingPlanItem:
		return SectionCarePlan, true
	}
	return "", false
}

// ValidationError reports malformed input rejected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// ReviewFlag marks an entry for clinician review, e.g. a retained
// contradiction. Flags annotate entries; they are never auto-resolved here.
type ReviewFlag struct {
	Reason    string    `json:"reason"`
	FlaggedAt time.Time `json:"flagged_at"`
}

// Entry is one dated element of a record section. Value carries plaintext in
// memory; the service layer seals it into an envelope before persistence.
type Entry struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Value           string      `json:"value"`
	Unit            string      `json:"unit,omitempty"`
	EffectiveDate   time.Time   `json:"effective_date"`
	ApproximateDate bool        `json:"approximate_date,omitempty"`
	AddendumAt      *time.Time  `json:"addendum_at,omitempty"`
	ReviewFlag      *ReviewFlag `json:"review_flag,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Section is one ordered record section for one patient. Rolling sections
// keep entries newest-first.
type Section struct {
	PatientID uuid.UUID   `json:"patient_id"`
	Kind      SectionKind `json:"kind"`
	Entries   []Entry     `json:"entries"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewSection returns an empty section for the patient.
func NewSection(patientID uuid.UUID, kind SectionKind) *Section {
	return &Section{PatientID: patientID, Kind: kind}
}

// ChangeSummary reports what a merge did, per section, with a human-readable
// delta. It carries no protected content beyond entry names in the delta,
// which stays inside the clinical response and out of the audit trail.
type ChangeSummary struct {
	Changed  map[SectionKind]bool
	Appended int
	Replaced int
	Flagged  int
	Skipped  int
	Delta    []string
}

func newChangeSummary() *ChangeSummary {
	return &ChangeSummary{Changed: make(map[SectionKind]bool)}
}

// ChangedSections lists changed sections in canonical order.
func (s *ChangeSummary) ChangedSections() []SectionKind {
	var kinds []SectionKind
	for _, k := range AllSectionKinds() {
		if s.Changed[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (s *ChangeSummary) note(kind SectionKind, format string, args ...interface{}) {
	s.Delta = append(s.Delta, string(kind)+": "+fmt.Sprintf(format, args...))
}

// Text renders the delta as one human-readable block.
func (s *ChangeSummary) Text() string {
	if len(s.Delta) == 0 {
		return "no changes"
	}
	return strings.Join(s.Delta, "\n")
}
