// Package alert manages clinical alerts raised by the escalation detector
// and lab threshold checks. An alert is OPEN until a clinician resolves it;
// RESOLVED is terminal and severity never changes after creation.
package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity orders alerts by clinical urgency.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is at or above the given floor.
func (s Severity) AtLeast(floor Severity) bool {
	return severityRank[s] >= severityRank[floor]
}

// Max returns the more urgent of the two severities.
func Max(a, b Severity) Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// Status is the alert lifecycle state. RESOLVED is terminal.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusResolved Status = "RESOLVED"
)

// Kind classifies what raised the alert.
type Kind string

const (
	KindEscalation   Kind = "ESCALATION"
	KindLabThreshold Kind = "LAB_THRESHOLD"
)

// Alert is one actionable clinical alert. Message carries plaintext in
// memory; the service seals it before persistence.
type Alert struct {
	ID         uuid.UUID  `json:"id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	Kind       Kind       `json:"kind"`
	Severity   Severity   `json:"severity"`
	Status     Status     `json:"status"`
	Message    string     `json:"message"`
	Source     string     `json:"source"`
	ResolvedBy *string    `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Note       *string    `json:"note,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ConflictError reports a resolve attempt on an already-resolved alert.
type ConflictError struct {
	AlertID uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("alert %s is already resolved", e.AlertID)
}
