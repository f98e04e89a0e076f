package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the session engine and the RPC layer.
const (
	EventSessionIssued     = "session.issued"
	EventSessionRotated    = "session.rotated"
	EventSessionRevoked    = "session.revoked"
	EventSessionRevokedAll = "session.revoked_all"
	EventSessionExpired    = "session.expired"
	EventReuseDetected     = "session.reuse_detected"
	EventCleanup           = "session.cleanup"
	EventUserDeactivated   = "user.deactivated"
	EventRPCRequest        = "rpc.request"
)

// Event is a single telemetry event. It is serialized as JSON on the Kafka topic.
type Event struct {
	ID         string            `json:"id"`
	EventType  string            `json:"eventType"`
	Source     string            `json:"source"`
	UserID     int64             `json:"userId,omitempty"`
	SessionRef string            `json:"sessionRef,omitempty"` // truncated session id, never the full id
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// NewEvent returns an Event with a fresh id and the current UTC time.
func NewEvent(eventType, source string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		EventType: eventType,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// SessionRef shortens a session id for logs and events.
func SessionRef(sessionID string) string {
	if len(sessionID) > 12 {
		return sessionID[:12]
	}
	return sessionID
}
