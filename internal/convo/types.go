// Package convo owns the conversation state machine and the per-turn
// pipeline: persist the user message, extract intent, retrieve and rank
// products, synthesize the reply, persist the result.
package convo

import "time"

// Stage is the conversation's position in the discovery-to-decision funnel.
// Stages only move forward; closed is terminal.
type Stage string

const (
	StageGreeting      Stage = "greeting"
	StageDiscovery     Stage = "discovery"
	StageConsideration Stage = "consideration"
	StageDecision      Stage = "decision"
	StageClosed        Stage = "closed"
)

// Status is the conversation lifecycle flag.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Context is the typed slot accumulator carried across turns. Extensions is
// the escape hatch for keys this version does not know about.
type Context struct {
	BudgetHint          *float64          `json:"budget_hint,omitempty"`
	CategoryHint        string            `json:"category_hint,omitempty"`
	LastProductIDs      []string          `json:"last_product_ids,omitempty"`
	SlotStreak          int               `json:"slot_streak,omitempty"`
	LastIntent          string            `json:"last_intent,omitempty"`
	ObjectionProductIDs []string          `json:"objection_product_ids,omitempty"`
	Extensions          map[string]string `json:"extensions,omitempty"`
}

// Conversation is one user's chat session. At most one conversation per user
// is active at any time.
type Conversation struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Stage             Stage      `json:"stage"`
	Status            Status     `json:"status"`
	Context           Context    `json:"context"`
	ProductsDiscussed []string   `json:"products_discussed,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	LastActivityAt    time.Time  `json:"last_activity_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
}

func (c Conversation) Active() bool {
	return c.Status == StatusActive
}

// ProductRef is the compact product summary attached to assistant messages.
type ProductRef struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Metadata annotates an assistant message. Partial marks replies whose
// streaming was cut short; the content is whatever was delivered.
type Metadata struct {
	Products   []ProductRef      `json:"products,omitempty"`
	Stage      Stage             `json:"stage,omitempty"`
	Partial    bool              `json:"partial,omitempty"`
	Extensions map[string]string `json:"extensions,omitempty"`
}

// Message is one persisted turn half. Messages are immutable once written.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Intent         string    `json:"intent,omitempty"`
	Metadata       Metadata  `json:"metadata"`
	CreatedAt      time.Time `json:"created_at"`
}
