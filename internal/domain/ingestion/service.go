package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelog/carelog/internal/domain/alert"
	"github.com/carelog/carelog/internal/domain/escalation"
	"github.com/carelog/carelog/internal/domain/record"
	"github.com/carelog/carelog/internal/domain/verification"
	"github.com/carelog/carelog/internal/platform/audit"
)

// Service orchestrates submissions across extraction, merge, verification
// and alerting. Each exposed operation records exactly one audit event on
// success.
type Service struct {
	extractor  Extractor
	timeout    time.Duration
	locker     record.Locker
	records    *record.Service
	ledger     *verification.Service
	alerts     *alert.Service
	detector   *escalation.Detector
	thresholds []escalation.LabThreshold
	recorder   audit.Recorder
	logger     zerolog.Logger
}

// NewService wires the orchestrator. Empty thresholds fall back to the
// default panic-value table.
func NewService(
	extractor Extractor,
	timeout time.Duration,
	locker record.Locker,
	records *record.Service,
	ledger *verification.Service,
	alerts *alert.Service,
	detector *escalation.Detector,
	thresholds []escalation.LabThreshold,
	recorder audit.Recorder,
	logger zerolog.Logger,
) *Service {
	if len(thresholds) == 0 {
		thresholds = escalation.DefaultLabThresholds()
	}
	return &Service{
		extractor:  extractor,
		timeout:    timeout,
		locker:     locker,
		records:    records,
		ledger:     ledger,
		alerts:     alerts,
		detector:   detector,
		thresholds: thresholds,
		recorder:   recorder,
		logger:     logger,
	}
}

// TextResult is the outcome of one clinical text submission.
type TextResult struct {
	Summary    *record.ChangeSummary `json:"-"`
	Delta      string                `json:"delta"`
	Changed    []record.SectionKind  `json:"changed_sections"`
	Registered []*verification.Item  `json:"registered_items,omitempty"`
	Alerts     []*alert.Alert        `json:"alerts,omitempty"`
}

// IngestClinicalText extracts findings from raw text and lands them
// atomically: merge, verification registration and threshold alerts run
// inside the per-patient lock, so a failure anywhere persists nothing.
// Clinician submissions skip the verification ledger.
func (s *Service) IngestClinicalText(ctx context.Context, patientID uuid.UUID, rawText string, source verification.SourceType, actx audit.Context) (*TextResult, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, &record.ValidationError{Field: "text", Reason: "submission text is empty"}
	}
	if source == "" {
		source = verification.SourceAIExtracted
	}

	bundle, err := s.extract(ctx, rawText)
	if err != nil {
		return nil, err
	}

	result := &TextResult{}
	now := time.Now().UTC()
	err = s.locker.WithPatientLock(ctx, patientID, func(ctx context.Context) error {
		summary, labs, err := s.records.ApplyFindingsLocked(ctx, patientID, bundle.Findings, now)
		if err != nil {
			return err
		}
		result.Summary = summary
		result.Delta = summary.Text()
		result.Changed = summary.ChangedSections()

		if source != verification.SourceClinician {
			for _, f := range bundle.Findings {
				item, err := s.ledger.Register(ctx, patientID, string(f.Kind), findingSummary(f), source)
				if err != nil {
					return fmt.Errorf("register finding: %w", err)
				}
				result.Registered = append(result.Registered, item)
			}
		}

		for _, breach := range escalation.CheckLabs(labs, s.thresholds) {
			a, err := s.alerts.Raise(ctx, patientID, alert.KindLabThreshold, breach.Severity, breach.Message(), "lab_threshold")
			if err != nil {
				return fmt.Errorf("raise threshold alert: %w", err)
			}
			result.Alerts = append(result.Alerts, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	actx.PatientID = &patientID
	_ = s.recorder.Record(ctx, audit.NewEvent(audit.ActionCreate, "ClinicalText", "submission", actx,
		map[string]string{
			"findings":   strconv.Itoa(len(bundle.Findings)),
			"appended":   strconv.Itoa(result.Summary.Appended),
			"replaced":   strconv.Itoa(result.Summary.Replaced),
			"flagged":    strconv.Itoa(result.Summary.Flagged),
			"registered": strconv.Itoa(len(result.Registered)),
			"alerts":     strconv.Itoa(len(result.Alerts)),
			"source":     string(source),
		}))
	return result, nil
}

// extract bounds the oracle call with the configured timeout. A deadline hit
// is a retryable ExtractionError; a malformed bundle surfaces the oracle's
// ValidationError unchanged.
func (s *Service) extract(ctx context.Context, rawText string) (*FindingsBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	bundle, err := s.extractor.Extract(ctx, rawText)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &ExtractionError{Timeout: true, Err: err}
		}
		var ve *record.ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, &ExtractionError{Err: err}
	}
	if bundle == nil {
		return nil, &ExtractionError{Err: errors.New("oracle returned no bundle")}
	}
	return bundle, nil
}

// UtteranceResult is the outcome of one patient utterance evaluation.
type UtteranceResult struct {
	Decision escalation.Decision `json:"decision"`
	Alert    *alert.Alert        `json:"alert,omitempty"`
}

// IngestUtterance evaluates a patient utterance for urgency and opens an
// alert at the decision's severity on every triggered verdict. Urgency is
// independent of trust: this path never reads or writes verification state.
func (s *Service) IngestUtterance(ctx context.Context, patientID uuid.UUID, utterance string, actx audit.Context) (*UtteranceResult, error) {
	if strings.TrimSpace(utterance) == "" {
		return nil, &record.ValidationError{Field: "utterance", Reason: "utterance is empty"}
	}

	decision := s.detector.Evaluate(ctx, utterance)
	result := &UtteranceResult{Decision: decision}

	if decision.RequiresEscalation {
		a, err := s.alerts.Raise(ctx, patientID, alert.KindEscalation, decision.Severity, utterance, "utterance")
		if err != nil {
			return nil, fmt.Errorf("raise escalation alert: %w", err)
		}
		result.Alert = a
		s.logger.Warn().
			Str("patient_id", patientID.String()).
			Str("severity", string(decision.Severity)).
			Msg("utterance escalated")
	}

	actx.PatientID = &patientID
	_ = s.recorder.Record(ctx, audit.NewEvent(audit.ActionCreate, "Utterance", "submission", actx,
		map[string]string{
			"escalated": strconv.FormatBool(decision.RequiresEscalation),
			"severity":  string(decision.Severity),
		}))
	return result, nil
}

// ReviewQueue returns the patient's pending verification items.
func (s *Service) ReviewQueue(ctx context.Context, patientID uuid.UUID, limit, offset int, actx audit.Context) ([]*verification.Item, int, error) {
	items, total, err := s.ledger.ListPending(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	actx.PatientID = &patientID
	_ = s.recorder.Record(ctx, audit.NewEvent(audit.ActionRead, "VerificationItem", "pending", actx, nil))
	return items, total, nil
}

// ReviewTransition applies a reviewer verdict to a pending item.
func (s *Service) ReviewTransition(ctx context.Context, itemID uuid.UUID, action verification.Action, reviewer string, actx audit.Context) (*verification.Item, error) {
	item, err := s.ledger.Transition(ctx, itemID, action, reviewer)
	if err != nil {
		return nil, err
	}
	actx.PatientID = &item.PatientID
	_ = s.recorder.Record(ctx, audit.NewEvent(audit.ActionUpdate, "VerificationItem", itemID.String(), actx,
		map[string]string{"action": string(action), "status": string(item.Status)}))
	return item, nil
}

// findingSummary renders the content-bearing line that goes (encrypted)
// into a verification item.
func findingSummary(f record.Finding) string {
	parts := []string{string(f.Kind), f.Name}
	if f.Value != "" {
		parts = append(parts, f.Value)
	}
	if f.Unit != "" {
		parts = append(parts, f.Unit)
	}
	return strings.Join(parts, " ")
}
