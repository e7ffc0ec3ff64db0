package facade

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConversationMessage is one persisted turn of a conversation.
type ConversationMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationStore persists conversation turns in order. It doubles as
// the orchestrator's message sink.
type ConversationStore interface {
	AppendMessage(ctx context.Context, conversationID, role, content string) error
	Messages(ctx context.Context, conversationID string) ([]ConversationMessage, error)
}

// MemoryConversationStore keeps conversations in a map.
type MemoryConversationStore struct {
	mu       sync.RWMutex
	messages map[string][]ConversationMessage
}

// NewMemoryConversationStore creates an empty store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{messages: make(map[string][]ConversationMessage)}
}

func (s *MemoryConversationStore) AppendMessage(_ context.Context, conversationID, role, content string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	msg := ConversationMessage{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	s.mu.Lock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	s.mu.Unlock()
	return nil
}

func (s *MemoryConversationStore) Messages(_ context.Context, conversationID string) ([]ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ConversationMessage, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out, nil
}

// SQLConversationStore persists conversations in a database/sql table.
type SQLConversationStore struct {
	db     *sql.DB
	driver string
}

const conversationSchema = `
CREATE TABLE IF NOT EXISTS conversation_messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
)`

// NewSQLConversationStore creates the store and its schema on db.
func NewSQLConversationStore(db *sql.DB, driver string) (*SQLConversationStore, error) {
	if _, err := db.Exec(conversationSchema); err != nil {
		return nil, fmt.Errorf("failed to create conversation_messages table: %w", err)
	}
	return &SQLConversationStore{db: db, driver: driver}, nil
}

func (s *SQLConversationStore) placeholders(n int) []string {
	out := make([]string, n)
	for i := range out {
		if s.driver == "postgres" {
			out[i] = fmt.Sprintf("$%d", i+1)
		} else {
			out[i] = "?"
		}
	}
	return out
}

func (s *SQLConversationStore) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	p := s.placeholders(5)
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO conversation_messages (id, conversation_id, role, content, created_at) VALUES (%s, %s, %s, %s, %s)",
			p[0], p[1], p[2], p[3], p[4]),
		uuid.New().String(), conversationID, role, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *SQLConversationStore) Messages(ctx context.Context, conversationID string) ([]ConversationMessage, error) {
	p := s.placeholders(1)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, conversation_id, role, content, created_at FROM conversation_messages WHERE conversation_id = %s ORDER BY created_at, id", p[0]),
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []ConversationMessage
	for rows.Next() {
		var msg ConversationMessage
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
