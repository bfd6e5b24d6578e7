// Package ingestion is the submission boundary: it turns raw clinical text
// into findings through an extraction oracle, merges them under the patient
// lock, registers verification items and raises alerts. A submission either
// lands completely or not at all.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/carelog/carelog/internal/domain/record"
)

// FindingsBundle is the structured output of one extraction call.
type FindingsBundle struct {
	Findings []record.Finding `json:"findings"`
}

// Extractor turns raw clinical text into a findings bundle. Implementations
// must honor ctx cancellation; the service bounds every call with the
// configured extraction timeout.
type Extractor interface {
	Extract(ctx context.Context, rawText string) (*FindingsBundle, error)
}

// ExtractionError reports a failed extraction call. Timeout failures are
// retryable; the submission is abandoned whole either way.
type ExtractionError struct {
	Timeout bool
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("extraction timed out: %v", e.Err)
	}
	return fmt.Sprintf("extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Retryable reports whether resubmitting the same text may succeed.
func (e *ExtractionError) Retryable() bool { return e.Timeout }

// wireFinding is the extraction oracle's JSON shape. Dates arrive as
// date-only or RFC 3339 strings.
type wireFinding struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Value   string `json:"value"`
	Unit    string `json:"unit"`
	Date    string `json:"date"`
	RawText string `json:"raw_text"`
}

// DecodeBundle parses and validates an oracle response. Unknown kinds are
// coerced to symptom (the original text is preserved in RawText); a missing
// name cannot be coerced and makes the bundle malformed. Nothing is ever
// fabricated: absent dates stay absent.
func DecodeBundle(data []byte) (*FindingsBundle, error) {
	var wire struct {
		Findings []wireFinding `json:"findings"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &record.ValidationError{Field: "bundle", Reason: "not valid JSON"}
	}

	bundle := &FindingsBundle{}
	for i, wf := range wire.Findings {
		f, err := coerceFinding(wf)
		if err != nil {
			return nil, fmt.Errorf("finding %d: %w", i, err)
		}
		bundle.Findings = append(bundle.Findings, f)
	}
	return bundle, nil
}

func coerceFinding(wf wireFinding) (record.Finding, error) {
	f := record.Finding{
		Kind:    record.FindingKind(strings.ToLower(strings.TrimSpace(wf.Kind))),
		Name:    strings.TrimSpace(wf.Name),
		Value:   strings.TrimSpace(wf.Value),
		Unit:    strings.TrimSpace(wf.Unit),
		RawText: wf.RawText,
	}
	if _, ok := f.TargetSection(); !ok {
		f.Kind = record.FindingSymptom
	}
	if wf.Date != "" {
		d, err := parseDate(wf.Date)
		if err != nil {
			return f, &record.ValidationError{Field: "date", Reason: fmt.Sprintf("unparseable date %q", wf.Date)}
		}
		f.Date = &d
	}
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown date layout")
}
