package convo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the conversation log collaborator: append-only messages plus
// conversation snapshots. Implementations return ErrConversationNotFound for
// unknown ids.
type Store interface {
	CreateConversation(ctx context.Context, c Conversation) error
	GetConversation(ctx context.Context, id string) (Conversation, error)
	// ActiveConversationByUser returns ErrConversationNotFound when the user
	// has no active conversation.
	ActiveConversationByUser(ctx context.Context, userID string) (Conversation, error)
	ListConversationsByUser(ctx context.Context, userID string) ([]Conversation, error)
	UpdateConversation(ctx context.Context, c Conversation) error
	AppendMessage(ctx context.Context, m Message) error
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	Close() error
}

// NewStore selects the persistence backend: postgres when a pool is
// configured, otherwise the in-memory log.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (Store, error) {
	if pool != nil {
		return NewPostgresStore(ctx, pool)
	}
	return NewInMemoryStore(), nil
}
