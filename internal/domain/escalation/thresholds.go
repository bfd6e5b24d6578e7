package escalation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/carelog/carelog/internal/domain/alert"
	"github.com/carelog/carelog/internal/domain/record"
)

// LabThreshold is one panic-value rule. A nil bound is unbounded on that
// side. Name is matched against the normalized lab name.
type LabThreshold struct {
	Name     string
	Low      *float64
	High     *float64
	Severity alert.Severity
}

// Breach reports one lab entry outside its threshold.
type Breach struct {
	Entry    record.Entry
	Rule     LabThreshold
	Severity alert.Severity
}

// Message renders a content-bearing description for an alert body. It is
// encrypted by the alert service before it is stored.
func (b Breach) Message() string {
	bounds := ""
	if b.Rule.Low != nil {
		bounds = fmt.Sprintf(" (low %.1f)", *b.Rule.Low)
	}
	if b.Rule.High != nil {
		bounds += fmt.Sprintf(" (high %.1f)", *b.Rule.High)
	}
	return fmt.Sprintf("%s %s %s outside threshold%s", b.Entry.Name, b.Entry.Value, b.Entry.Unit, bounds)
}

func f(v float64) *float64 { return &v }

// DefaultLabThresholds covers the panic values the triage team pages on.
func DefaultLabThresholds() []LabThreshold {
	return []LabThreshold{
		{Name: "potassium", Low: f(2.8), High: f(6.0), Severity: alert.SeverityCritical},
		{Name: "sodium", Low: f(120), High: f(158), Severity: alert.SeverityCritical},
		{Name: "glucose", Low: f(50), High: f(450), Severity: alert.SeverityCritical},
		{Name: "inr", High: f(4.5), Severity: alert.SeverityHigh},
		{Name: "bnp", High: f(900), Severity: alert.SeverityHigh},
		{Name: "creatinine", High: f(4.0), Severity: alert.SeverityHigh},
		{Name: "hemoglobin", Low: f(7.0), Severity: alert.SeverityHigh},
		{Name: "troponin", High: f(0.04), Severity: alert.SeverityCritical},
	}
}

// CheckLabs evaluates plaintext lab entries against the thresholds. Entries
// whose values do not parse as numbers are skipped: threshold checks only
// apply to numeric results.
func CheckLabs(entries []record.Entry, thresholds []LabThreshold) []Breach {
	var breaches []Breach
	for _, e := range entries {
		value, err := parseNumeric(e.Value)
		if err != nil {
			continue
		}
		name := record.Normalize(e.Name)
		for _, rule := range thresholds {
			if name != rule.Name {
				continue
			}
			if (rule.Low != nil && value < *rule.Low) || (rule.High != nil && value > *rule.High) {
				breaches = append(breaches, Breach{Entry: e, Rule: rule, Severity: rule.Severity})
			}
		}
	}
	return breaches
}

// parseNumeric accepts a bare number or a number with a trailing qualifier,
// as in "6.2 (hemolyzed)".
func parseNumeric(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	return strconv.ParseFloat(s, 64)
}
