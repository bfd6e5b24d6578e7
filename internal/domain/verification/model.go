// Package verification tracks the trust state of every non-clinician-entered
// data point. Trust is independent of urgency: escalation never reads it.
package verification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceType classifies where a data point came from.
type SourceType string

const (
	SourcePatientSMS    SourceType = "PATIENT_SMS"
	SourcePatientVoice  SourceType = "PATIENT_VOICE"
	SourcePatientPortal SourceType = "PATIENT_PORTAL"
	SourceClinician     SourceType = "CLINICIAN"
	SourceDevice        SourceType = "DEVICE"
	SourceEMRImport     SourceType = "EMR_IMPORT"
	SourceAIExtracted   SourceType = "AI_EXTRACTED"
	SourceSystem        SourceType = "SYSTEM"
)

// Status is the trust state of an item. VERIFIED and DISPUTED are terminal.
type Status string

const (
	StatusUnverified Status = "UNVERIFIED"
	StatusVerified   Status = "VERIFIED"
	StatusDisputed   Status = "DISPUTED"
)

// Terminal reports whether no further transition is legal.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusDisputed
}

// Action is a reviewer transition request.
type Action string

const (
	ActionVerify  Action = "verify"
	ActionDispute Action = "dispute"
)

// Item is the tracked trust state of one data point. Summary carries
// plaintext in memory; the service seals it before persistence.
type Item struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	ResourceType string     `json:"resource_type"`
	SourceType   SourceType `json:"source_type"`
	Confidence   int        `json:"confidence"`
	Status       Status     `json:"status"`
	Summary      string     `json:"summary"`
	VerifiedBy   *string    `json:"verified_by,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ConflictError reports a transition attempt on a terminal item. The item's
// status is unchanged.
type ConflictError struct {
	ItemID uuid.UUID
	Status Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("verification item %s is %s; terminal statuses cannot transition", e.ItemID, e.Status)
}

// ConfidencePolicy assigns initial confidence (0..3) per source type.
type ConfidencePolicy map[SourceType]int

// DefaultConfidencePolicy: clinician entry 3, structured import 2, free-text
// self-report and AI extraction 1, everything else 0.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{
		SourceClinician:     3,
		SourceEMRImport:     2,
		SourceDevice:        2,
		SourcePatientSMS:    1,
		SourcePatientVoice:  1,
		SourcePatientPortal: 1,
		SourceAIExtracted:   1,
	}
}

// Confidence looks up the policy, defaulting to 0 for unknown sources.
func (p ConfidencePolicy) Confidence(source SourceType) int {
	return p[source]
}
