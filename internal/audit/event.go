// Package audit records security-critical operations as an append-only
// JSON-lines file in the state directory. Appends are best-effort: a failed
// write is logged and swallowed, never surfaced to the caller.
package audit

import (
	"time"
)

// EventType identifies an auditable operation.
type EventType string

const (
	// Firewall operations
	EventApplyRules      EventType = "apply-rules"
	EventRevertRules     EventType = "revert-rules"
	EventVerifyRules     EventType = "verify-rules"
	EventSaveSnapshot    EventType = "save-snapshot"
	EventRestoreSnapshot EventType = "restore-snapshot"

	// Profile management
	EventProfileCreated  EventType = "profile-created"
	EventProfileDeleted  EventType = "profile-deleted"
	EventProfileRenamed  EventType = "profile-renamed"
	EventProfileSwitched EventType = "profile-switched"

	// Settings
	EventSettingsSaved EventType = "settings-saved"

	// Auto-revert resolution
	EventAutoRevertConfirmed EventType = "auto-revert-confirmed"
	EventAutoRevertTimedOut  EventType = "auto-revert-timed-out"

	// Elevation outcomes
	EventElevationCancelled EventType = "elevation-cancelled"
	EventElevationFailed    EventType = "elevation-failed"

	// Rule edits
	EventRuleCreated    EventType = "rule-created"
	EventRuleDeleted    EventType = "rule-deleted"
	EventRuleModified   EventType = "rule-modified"
	EventRuleToggled    EventType = "rule-toggled"
	EventRulesReordered EventType = "rules-reordered"

	// Export
	EventExportCompleted EventType = "export-completed"
)

// Event is one audit log entry, serialised as a single JSON line.
type Event struct {
	// Timestamp is when the event occurred, UTC.
	Timestamp time.Time `json:"timestamp"`

	// Type identifies the operation.
	Type EventType `json:"event_type"`

	// Success reports whether the operation succeeded.
	Success bool `json:"success"`

	// Details carries structured context, e.g. rule counts.
	Details map[string]any `json:"details"`

	// Error holds the failure message when Success is false.
	Error string `json:"error,omitempty"`
}

// NewEvent builds an event stamped with the current time. err may be nil.
func NewEvent(t EventType, success bool, details map[string]any, err error) Event {
	e := Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Success:   success,
		Details:   details,
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
