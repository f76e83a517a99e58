package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a map-backed Store for tests.
type InMemoryStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*Conversation
	messages      map[uuid.UUID][]Message
	externalIDs   map[string]struct{}
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[uuid.UUID]*Conversation),
		messages:      make(map[uuid.UUID][]Message),
		externalIDs:   make(map[string]struct{}),
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) FindByInstanceAndPhone(_ context.Context, companyID uuid.UUID, instanceName, phone string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Conversation
	for _, conv := range s.conversations {
		if conv.CompanyID != companyID || conv.InstanceName != instanceName || conv.Phone != phone {
			continue
		}
		if best == nil || conv.LastActivityAt.After(best.LastActivityAt) {
			best = conv
		}
	}
	if best == nil {
		return nil, nil
	}
	copied := *best
	return &copied, nil
}

func (s *InMemoryStore) ListByCompanyAndPhone(_ context.Context, companyID uuid.UUID, phone string) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Conversation
	for _, conv := range s.conversations {
		if conv.CompanyID == companyID && conv.Phone == phone {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

func (s *InMemoryStore) Create(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.LastActivityAt.IsZero() {
		conv.LastActivityAt = time.Now().UTC()
	}
	copied := *conv
	s.conversations[conv.ID] = &copied
	return nil
}

func (s *InMemoryStore) Rebind(_ context.Context, id uuid.UUID, instanceName, contactName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil
	}
	conv.InstanceName = instanceName
	if contactName != "" {
		conv.ContactName = contactName
	}
	conv.LastActivityAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) AppendMessage(_ context.Context, msg *Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ExternalID != "" {
		if _, seen := s.externalIDs[msg.ExternalID]; seen {
			return false, nil
		}
		s.externalIDs[msg.ExternalID] = struct{}{}
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Status == "" {
		msg.Status = MessageStatusSent
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return true, nil
}

func (s *InMemoryStore) RecentMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *InMemoryStore) RecentAssistantMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	var out []Message
	for i := len(msgs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if msgs[i].Role == RoleAssistant {
			out = append(out, msgs[i])
		}
	}
	return out, nil
}

func (s *InMemoryStore) LatestAssistantMessage(ctx context.Context, conversationID uuid.UUID) (*Message, error) {
	msgs, err := s.RecentAssistantMessages(ctx, conversationID, 1)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}
