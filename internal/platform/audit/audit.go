// Package audit records an append-only, content-free trail of every access
// and mutation of patient-scoped resources. Events carry actor, action and
// resource identity plus a small metadata map; protected clinical content
// never enters the trail.
package audit

import (
	"context"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Action classifies an audit event.
type Action string

const (
	ActionCreate    Action = "CREATE"
	ActionRead      Action = "READ"
	ActionUpdate    Action = "UPDATE"
	ActionDelete    Action = "DELETE"
	ActionExport    Action = "EXPORT"
	ActionVoiceCall Action = "VOICE_CALL"
)

// maxDetailValueLen bounds detail values so free text cannot leak into the
// trail. Counts, enums and booleans all fit well under this.
const maxDetailValueLen = 64

// maxDetailKeys bounds the size of the details map.
const maxDetailKeys = 16

// Context carries the caller identity attached to every event. It never
// contains protected content.
type Context struct {
	Actor        string
	ActorRole    string
	Organization string
	PatientID    *uuid.UUID
	NetworkAddr  string
	SessionID    string
}

// Event is one append-only audit trail entry.
type Event struct {
	ID           uuid.UUID         `json:"id"`
	Actor        string            `json:"actor"`
	ActorRole    string            `json:"actor_role"`
	Organization string            `json:"organization"`
	PatientID    *uuid.UUID        `json:"patient_id,omitempty"`
	Action       Action            `json:"action"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	NetworkAddr  string            `json:"network_address"`
	SessionID    string            `json:"session_id"`
	Details      map[string]string `json:"details,omitempty"`
	Recorded     time.Time         `json:"recorded"`
}

// NewEvent builds an Event from the caller context. Details are sanitized:
// oversized values are truncated and the map is capped, so a caller passing
// free text by mistake cannot turn the trail into a content store.
func NewEvent(action Action, resourceType, resourceID string, actx Context, details map[string]string) *Event {
	e := &Event{
		ID:           uuid.New(),
		Actor:        actx.Actor,
		ActorRole:    actx.ActorRole,
		Organization: actx.Organization,
		PatientID:    actx.PatientID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		NetworkAddr:  actx.NetworkAddr,
		SessionID:    actx.SessionID,
		Details:      sanitizeDetails(details),
		Recorded:     time.Now().UTC(),
	}
	return e
}

func sanitizeDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	// Sorted so the surviving keys under the cap are stable across calls.
	sort.Strings(keys)
	if len(keys) > maxDetailKeys {
		keys = keys[:maxDetailKeys]
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = truncateValue(details[k])
	}
	return out
}

// truncateValue cuts on a rune boundary so a multi-byte character is dropped
// whole rather than split into invalid bytes.
func truncateValue(v string) string {
	if len(v) <= maxDetailValueLen {
		return v
	}
	cut := maxDetailValueLen
	for cut > 0 && !utf8.RuneStart(v[cut]) {
		cut--
	}
	return v[:cut]
}

// Recorder appends events to the trail. Implementations must be safe for
// concurrent use across patients and channels.
type Recorder interface {
	Record(ctx context.Context, e *Event) error
}
