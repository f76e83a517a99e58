// Package conversation owns the dialogue side of the booking engine:
// resolving inbound messages to conversations, producing assistant
// replies, detecting confirmations and extracting booking details.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message delivery status, recorded on assistant messages.
const (
	MessageStatusSent        = "sent"
	MessageStatusUndelivered = "undelivered"
)

// Conversation is the message thread tied to one (channel instance,
// phone number) pair. Created on first inbound message, never deleted
// by this engine.
type Conversation struct {
	ID             uuid.UUID
	CompanyID      uuid.UUID
	InstanceName   string
	Phone          string
	ContactName    string
	LastActivityAt time.Time
}

// Message is one dialogue turn. Append-only; ordering by CreatedAt
// defines the dialogue history.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	ExternalID     string
	Status         string
	CreatedAt      time.Time
}
