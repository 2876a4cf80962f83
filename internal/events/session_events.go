package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the session lifecycle events this service emits.
type EventType string

const (
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptResumed   EventType = "attempt.resumed"
	EventIntegrityWarning EventType = "attempt.integrity_warning"
	EventAttemptSubmitted EventType = "attempt.submitted"
)

// SessionEvent is the envelope for every published event.
type SessionEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

const (
	eventSource  = "test-engine"
	eventVersion = "1.0"
)

// NewSessionEvent wraps a payload in a fresh envelope.
func NewSessionEvent(eventType EventType, data interface{}) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
}

// ===== EVENT PAYLOADS =====

type AttemptStartedEvent struct {
	SessionID string `json:"session_id"`
	TestID    string `json:"test_id"`
	UserID    string `json:"user_id"`
	Duration  int    `json:"duration"` // seconds
}

type AttemptResumedEvent struct {
	SessionID     string `json:"session_id"`
	TestID        string `json:"test_id"`
	UserID        string `json:"user_id"`
	RemainingTime int    `json:"remaining_time"`
}

type IntegrityWarningEvent struct {
	SessionID      string `json:"session_id"`
	TestID         string `json:"test_id"`
	UserID         string `json:"user_id"`
	WarningCount   int    `json:"warning_count"`
	Threshold      int    `json:"threshold"`
	TabSwitchCount int    `json:"tab_switch_count"`
}

type AttemptSubmittedEvent struct {
	SessionID string `json:"session_id"`
	TestID    string `json:"test_id"`
	UserID    string `json:"user_id"`
	Score     int    `json:"score"`
	TimeTaken int    `json:"time_taken"`
	Forced    bool   `json:"forced"`
	Reason    string `json:"reason"` // user, time_expired, integrity_violation
}
