package escalation

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/carelog/carelog/internal/domain/alert"
	"github.com/carelog/carelog/internal/domain/record"
)

// Decision is the detector's verdict on one utterance.
type Decision struct {
	RequiresEscalation bool           `json:"requires_escalation"`
	Severity           alert.Severity `json:"severity,omitempty"`
	Reason             string         `json:"reason,omitempty"`
	MatchedSignals     []string       `json:"matched_signals,omitempty"`
}

// Classifier is an optional second-pass model. Its verdict is advisory:
// it may raise the lexicon decision but can never lower or cancel it.
type Classifier interface {
	Classify(ctx context.Context, utterance string) (escalate bool, severity alert.Severity, reason string, err error)
}

// Detector evaluates utterances against the lexicon and, when configured,
// an advisory classifier.
type Detector struct {
	signals    []Signal
	classifier Classifier
	logger     zerolog.Logger
}

// NewDetector builds a detector. A nil classifier leaves the lexicon pass
// as the only input. Empty signals fall back to the default lexicon.
func NewDetector(signals []Signal, classifier Classifier, logger zerolog.Logger) *Detector {
	if len(signals) == 0 {
		signals = DefaultLexicon()
	}
	return &Detector{signals: signals, classifier: classifier, logger: logger}
}

// Evaluate runs the lexicon pass and then the classifier. The classifier
// can add urgency on top of the lexicon verdict, never remove it: a lexicon
// match escalates even when the classifier disagrees or fails.
func (d *Detector) Evaluate(ctx context.Context, utterance string) Decision {
	decision := d.lexiconPass(utterance)

	if d.classifier == nil {
		return decision
	}

	escalate, severity, reason, err := d.classifier.Classify(ctx, utterance)
	if err != nil {
		d.logger.Warn().Err(err).Msg("escalation classifier unavailable, keeping lexicon verdict")
		return decision
	}
	if !escalate {
		return decision
	}

	if !decision.RequiresEscalation {
		decision.RequiresEscalation = true
		decision.Severity = severity
		decision.Reason = reason
		return decision
	}
	decision.Severity = alert.Max(decision.Severity, severity)
	return decision
}

func (d *Detector) lexiconPass(utterance string) Decision {
	normalized := " " + record.Normalize(utterance) + " "

	var decision Decision
	for _, sig := range d.signals {
		phrase := " " + record.Normalize(sig.Phrase) + " "
		if !strings.Contains(normalized, phrase) {
			continue
		}
		decision.MatchedSignals = append(decision.MatchedSignals, sig.Phrase)
		if !decision.RequiresEscalation {
			decision.RequiresEscalation = true
			decision.Severity = sig.Severity
			decision.Reason = "emergency signal: " + sig.Phrase
		} else {
			decision.Severity = alert.Max(decision.Severity, sig.Severity)
		}
	}
	return decision
}
