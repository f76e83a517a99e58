package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the store needs; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists conversations and messages in Postgres.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore initializes a store backed by pgx.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

const conversationColumns = `id, company_id, instance_name, phone, contact_name, last_activity_at`

func (s *PostgresStore) FindByInstanceAndPhone(ctx context.Context, companyID uuid.UUID, instanceName, phone string) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE company_id = $1 AND instance_name = $2 AND phone = $3
		ORDER BY last_activity_at DESC
		LIMIT 1
	`
	var conv Conversation
	err := s.pool.QueryRow(ctx, query, companyID, instanceName, phone).Scan(
		&conv.ID, &conv.CompanyID, &conv.InstanceName, &conv.Phone, &conv.ContactName, &conv.LastActivityAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: select by instance+phone: %w", err)
	}
	return &conv, nil
}

func (s *PostgresStore) ListByCompanyAndPhone(ctx context.Context, companyID uuid.UUID, phone string) ([]Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE company_id = $1 AND phone = $2
		ORDER BY last_activity_at DESC
	`
	rows, err := s.pool.Query(ctx, query, companyID, phone)
	if err != nil {
		return nil, fmt.Errorf("conversation: list by phone: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.CompanyID, &conv.InstanceName, &conv.Phone, &conv.ContactName, &conv.LastActivityAt); err != nil {
			return nil, fmt.Errorf("conversation: scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, conv *Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.LastActivityAt.IsZero() {
		conv.LastActivityAt = time.Now().UTC()
	}
	query := `
		INSERT INTO conversations (id, company_id, instance_name, phone, contact_name, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.pool.Exec(ctx, query,
		conv.ID, conv.CompanyID, conv.InstanceName, conv.Phone, conv.ContactName, conv.LastActivityAt,
	); err != nil {
		return fmt.Errorf("conversation: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Rebind(ctx context.Context, id uuid.UUID, instanceName, contactName string) error {
	query := `
		UPDATE conversations
		SET instance_name = $1,
		    contact_name = CASE WHEN $2 <> '' THEN $2 ELSE contact_name END,
		    last_activity_at = $3
		WHERE id = $4
	`
	if _, err := s.pool.Exec(ctx, query, instanceName, contactName, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("conversation: rebind: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg *Message) (bool, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Status == "" {
		msg.Status = MessageStatusSent
	}
	query := `
		INSERT INTO messages (id, conversation_id, role, content, external_id, status, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		ON CONFLICT (external_id) DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.ExternalID, msg.Status, msg.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("conversation: insert message: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

const messageColumns = `id, conversation_id, role, content, COALESCE(external_id, '') AS external_id, status, created_at`

func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + `
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PostgresStore) RecentAssistantMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND role = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, conversationID, RoleAssistant, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: recent assistant messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PostgresStore) LatestAssistantMessage(ctx context.Context, conversationID uuid.UUID) (*Message, error) {
	msgs, err := s.RecentAssistantMessages(ctx, conversationID, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.ExternalID, &msg.Status, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
