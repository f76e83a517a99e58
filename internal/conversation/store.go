package conversation

import (
	"context"

	"github.com/google/uuid"
)

// Store persists conversations and their append-only message history.
type Store interface {
	// FindByInstanceAndPhone returns the conversation scoped to the exact
	// instance+phone pair, or nil when none exists.
	FindByInstanceAndPhone(ctx context.Context, companyID uuid.UUID, instanceName, phone string) (*Conversation, error)

	// ListByCompanyAndPhone returns all of the company's conversations with
	// this phone, most recently active first.
	ListByCompanyAndPhone(ctx context.Context, companyID uuid.UUID, phone string) ([]Conversation, error)

	Create(ctx context.Context, conv *Conversation) error

	// Rebind re-attaches a conversation to the given instance, refreshing
	// its last-activity timestamp and contact name.
	Rebind(ctx context.Context, id uuid.UUID, instanceName, contactName string) error

	// AppendMessage inserts a message; a duplicate external id is a no-op
	// and reports inserted=false.
	AppendMessage(ctx context.Context, msg *Message) (inserted bool, err error)

	// RecentMessages returns the newest `limit` messages in chronological order.
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)

	// RecentAssistantMessages returns up to `limit` assistant messages,
	// newest first.
	RecentAssistantMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)

	// LatestAssistantMessage returns the most recent assistant message, or
	// nil when the assistant has not spoken yet.
	LatestAssistantMessage(ctx context.Context, conversationID uuid.UUID) (*Message, error)
}
