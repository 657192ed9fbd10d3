package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the conversation log in postgres. Messages are
// append-only; conversation rows are the only mutable state.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("init conversation schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			context JSONB NOT NULL DEFAULT '{}'::jsonb,
			products_discussed TEXT[] NOT NULL DEFAULT '{}',
			started_at TIMESTAMPTZ NOT NULL,
			last_activity_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_status
			ON conversations (user_id, status)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations (id),
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages (conversation_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, c Conversation) error {
	cctx, err := json.Marshal(c.Context)
	if err != nil {
		return fmt.Errorf("encode conversation context: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations
			(id, user_id, stage, status, context, products_discussed, started_at, last_activity_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.UserID, string(c.Stage), string(c.Status), cctx, c.ProductsDiscussed,
		c.StartedAt, c.LastActivityAt, c.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

const conversationColumns = `id, user_id, stage, status, context, products_discussed, started_at, last_activity_at, ended_at`

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *PostgresStore) ActiveConversationByUser(ctx context.Context, userID string) (Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE user_id = $1 AND status = $2
		 ORDER BY started_at DESC LIMIT 1`,
		userID, string(StatusActive))
	return scanConversation(row)
}

func (s *PostgresStore) ListConversationsByUser(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE user_id = $1 ORDER BY started_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateConversation(ctx context.Context, c Conversation) error {
	cctx, err := json.Marshal(c.Context)
	if err != nil {
		return fmt.Errorf("encode conversation context: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET stage = $2, status = $3, context = $4, products_discussed = $5,
		    last_activity_at = $6, ended_at = $7
		WHERE id = $1`,
		c.ID, string(c.Stage), string(c.Status), cctx, c.ProductsDiscussed,
		c.LastActivityAt, c.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m Message) error {
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("encode message metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, intent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ConversationID, string(m.Role), m.Content, m.Intent, meta, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, intent, metadata, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m    Message
			role string
			meta []byte
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Intent, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = Role(role)
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode message metadata: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		c             Conversation
		stage, status string
		cctx          []byte
	)
	err := row.Scan(&c.ID, &c.UserID, &stage, &status, &cctx, &c.ProductsDiscussed,
		&c.StartedAt, &c.LastActivityAt, &c.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	c.Stage = Stage(stage)
	c.Status = Status(status)
	if err := json.Unmarshal(cctx, &c.Context); err != nil {
		return Conversation{}, fmt.Errorf("decode conversation context: %w", err)
	}
	return c, nil
}
