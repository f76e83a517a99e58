package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/atendeai/booking-engine/pkg/logging"
)

// Resolver maps an inbound (instance, phone) pair to a conversation,
// preferring an existing open conversation. Messaging channels may rotate
// the underlying instance mid-dialogue; resolution must not fragment an
// in-progress booking into a new conversation.
type Resolver struct {
	store  Store
	logger *logging.Logger
}

// NewResolver creates a resolver over the given store.
func NewResolver(store Store, logger *logging.Logger) *Resolver {
	if store == nil {
		panic("conversation: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve finds or creates the conversation for an inbound message and
// refreshes its binding, activity timestamp and contact name.
func (r *Resolver) Resolve(ctx context.Context, companyID uuid.UUID, instanceName, phone, contactName, text string) (*Conversation, error) {
	conv, err := r.store.FindByInstanceAndPhone(ctx, companyID, instanceName, phone)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		if err := r.store.Rebind(ctx, conv.ID, instanceName, contactName); err != nil {
			return nil, err
		}
		return conv, nil
	}

	candidates, err := r.store.ListByCompanyAndPhone(ctx, companyID, phone)
	if err != nil {
		return nil, err
	}

	if len(candidates) > 0 {
		chosen := candidates[0]
		if IsConfirmation(text) {
			// A bare "sim" most likely answers the conversation that last
			// presented a booking summary, not the most recent thread.
			if preferred := r.findAwaitingConfirmation(ctx, candidates); preferred != nil {
				chosen = *preferred
			}
		}
		if err := r.store.Rebind(ctx, chosen.ID, instanceName, contactName); err != nil {
			return nil, err
		}
		chosen.InstanceName = instanceName
		r.logger.Debug("re-attached conversation to instance",
			"conversation_id", chosen.ID, "instance", instanceName, "phone", phone)
		return &chosen, nil
	}

	conv = &Conversation{
		ID:           uuid.New(),
		CompanyID:    companyID,
		InstanceName: instanceName,
		Phone:        phone,
		ContactName:  contactName,
	}
	if err := r.store.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("conversation: create: %w", err)
	}
	r.logger.Info("created conversation", "conversation_id", conv.ID, "instance", instanceName, "phone", phone)
	return conv, nil
}

func (r *Resolver) findAwaitingConfirmation(ctx context.Context, candidates []Conversation) *Conversation {
	for i := range candidates {
		last, err := r.store.LatestAssistantMessage(ctx, candidates[i].ID)
		if err != nil {
			r.logger.Warn("failed to load latest assistant message", "conversation_id", candidates[i].ID, "error", err)
			continue
		}
		if last != nil && LooksLikeSummary(last.Content) {
			return &candidates[i]
		}
	}
	return nil
}
