// Package escalation decides whether a patient utterance or lab value needs
// immediate clinician attention. The lexicon pass is tuned for recall: a
// missed emergency costs far more than a false page. Escalation is about
// urgency only and never consults verification state.
package escalation

import "github.com/carelog/carelog/internal/domain/alert"

// Signal is one lexicon entry. Phrase is matched against the normalized
// utterance as a whole-word phrase.
type Signal struct {
	Phrase   string
	Severity alert.Severity
}

// defaultLexicon covers the emergency presentations the triage team pages
// on. Phrases are lowercase; matching normalizes the utterance first.
var defaultLexicon = []Signal{
	// Cardiac
	{"chest pain", alert.SeverityCritical},
	{"chest pressure", alert.SeverityCritical},
	{"chest tightness", alert.SeverityCritical},
	{"heart racing", alert.SeverityHigh},
	{"palpitations", alert.SeverityHigh},

	// Respiratory
	{"can't breathe", alert.SeverityCritical},
	{"cannot breathe", alert.SeverityCritical},
	{"trouble breathing", alert.SeverityCritical},
	{"short of breath", alert.SeverityHigh},
	{"shortness of breath", alert.SeverityHigh},
	{"gasping", alert.SeverityCritical},

	// Neurological
	{"face drooping", alert.SeverityCritical},
	{"slurred speech", alert.SeverityCritical},
	{"can't move my arm", alert.SeverityCritical},
	{"numbness on one side", alert.SeverityCritical},
	{"worst headache of my life", alert.SeverityCritical},
	{"passed out", alert.SeverityHigh},
	{"fainted", alert.SeverityHigh},
	{"seizure", alert.SeverityCritical},
	{"confused", alert.SeverityHigh},

	// Bleeding
	{"coughing up blood", alert.SeverityCritical},
	{"vomiting blood", alert.SeverityCritical},
	{"blood in stool", alert.SeverityHigh},
	{"bleeding won't stop", alert.SeverityCritical},

	// Self-harm
	{"want to die", alert.SeverityCritical},
	{"kill myself", alert.SeverityCritical},
	{"hurt myself", alert.SeverityCritical},
	{"suicidal", alert.SeverityCritical},

	// Anaphylaxis
	{"throat closing", alert.SeverityCritical},
	{"tongue swelling", alert.SeverityCritical},
	{"hives all over", alert.SeverityHigh},

	// General deterioration
	{"severe pain", alert.SeverityHigh},
	{"unbearable pain", alert.SeverityHigh},
	{"high fever", alert.SeverityHigh},
	{"fell down", alert.SeverityMedium},
	{"dizzy", alert.SeverityMedium},
	{"dizziness", alert.SeverityMedium},
}

// DefaultLexicon returns a copy of the built-in signal list.
func DefaultLexicon() []Signal {
	return append([]Signal(nil), defaultLexicon...)
}
