package types

import "time"

// UserEventType names a user lifecycle transition.
type UserEventType string

const (
	UserCreated  UserEventType = "user.created"
	UserUpdated  UserEventType = "user.updated"
	UserDeleted  UserEventType = "user.deleted"
	UserReported UserEventType = "user.reported"
)

// UserEvent is published to the events channel after a user changes or is
// reported by another player.
type UserEvent struct {
	Type       UserEventType `json:"type"`
	RecordID   string        `json:"recordId,omitempty"`
	ExternalID string        `json:"externalId,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}
