package convo

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore keeps the conversation log in process memory. Used for tests
// and single-node deployments without a database.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
	messages      map[string][]Message
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
	}
}

func (s *InMemoryStore) CreateConversation(_ context.Context, c Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = cloneConversation(c)
	return nil
}

func (s *InMemoryStore) GetConversation(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return cloneConversation(c), nil
}

func (s *InMemoryStore) ActiveConversationByUser(_ context.Context, userID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if c.UserID == userID && c.Status == StatusActive {
			return cloneConversation(c), nil
		}
	}
	return Conversation{}, ErrConversationNotFound
}

func (s *InMemoryStore) ListConversationsByUser(_ context.Context, userID string) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Conversation
	for _, c := range s.conversations {
		if c.UserID == userID {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func (s *InMemoryStore) UpdateConversation(_ context.Context, c Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.ID]; !ok {
		return ErrConversationNotFound
	}
	s.conversations[c.ID] = cloneConversation(c)
	return nil
}

func (s *InMemoryStore) AppendMessage(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[m.ConversationID]; !ok {
		return ErrConversationNotFound
	}
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], cloneMessage(m))
	return nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}
	msgs := s.messages[conversationID]
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = cloneMessage(m)
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func cloneConversation(c Conversation) Conversation {
	out := c
	out.ProductsDiscussed = append([]string(nil), c.ProductsDiscussed...)
	out.Context.LastProductIDs = append([]string(nil), c.Context.LastProductIDs...)
	out.Context.ObjectionProductIDs = append([]string(nil), c.Context.ObjectionProductIDs...)
	if c.Context.BudgetHint != nil {
		b := *c.Context.BudgetHint
		out.Context.BudgetHint = &b
	}
	if c.Context.Extensions != nil {
		out.Context.Extensions = make(map[string]string, len(c.Context.Extensions))
		for k, v := range c.Context.Extensions {
			out.Context.Extensions[k] = v
		}
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		out.EndedAt = &t
	}
	return out
}

func cloneMessage(m Message) Message {
	out := m
	out.Metadata.Products = append([]ProductRef(nil), m.Metadata.Products...)
	if m.Metadata.Extensions != nil {
		out.Metadata.Extensions = make(map[string]string, len(m.Metadata.Extensions))
		for k, v := range m.Metadata.Extensions {
			out.Metadata.Extensions[k] = v
		}
	}
	return out
}
