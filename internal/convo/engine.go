package convo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mirandol/shoptalk/internal/catalog"
	"github.com/mirandol/shoptalk/internal/genai"
	"github.com/mirandol/shoptalk/internal/intent"
	"github.com/mirandol/shoptalk/internal/observability"
	"github.com/mirandol/shoptalk/internal/profile"
	"github.com/mirandol/shoptalk/internal/retrieval"
	"github.com/mirandol/shoptalk/internal/stream"
)

// Options tune the engine. Zero values fall back to the defaults below; the
// thresholds are deliberately configuration, not constants.
type Options struct {
	HistoryWindow    int
	RetrieveLimit    int
	TopKProducts     int
	SlotStreakTurns  int
	AutoCloseActive  bool
	IntentTimeout    time.Duration
	RetrievalTimeout time.Duration
	SynthesisTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = 10
	}
	if o.RetrieveLimit <= 0 {
		o.RetrieveLimit = 10
	}
	if o.TopKProducts <= 0 {
		o.TopKProducts = 4
	}
	if o.SlotStreakTurns <= 0 {
		o.SlotStreakTurns = 2
	}
	if o.IntentTimeout <= 0 {
		o.IntentTimeout = 10 * time.Second
	}
	if o.RetrievalTimeout <= 0 {
		o.RetrievalTimeout = 10 * time.Second
	}
	if o.SynthesisTimeout <= 0 {
		o.SynthesisTimeout = 60 * time.Second
	}
	return o
}

// StartResult is the outcome of opening a conversation. ClosedConversationID
// names the prior conversation when starting superseded one; callers are
// always told which conversation was closed on their behalf.
type StartResult struct {
	Conversation         Conversation `json:"conversation"`
	Greeting             Message      `json:"greeting"`
	ClosedConversationID string       `json:"closed_conversation_id,omitempty"`
}

// TurnResult is the outcome of one synchronous turn.
type TurnResult struct {
	Conversation     Conversation      `json:"conversation"`
	UserMessage      Message           `json:"user_message"`
	AssistantMessage Message           `json:"assistant_message"`
	Products         []catalog.Product `json:"products,omitempty"`
	Intent           intent.Type       `json:"intent"`
	Stage            Stage             `json:"stage"`
}

// Engine orchestrates conversations. It owns the in-flight registries that
// enforce one active conversation per user and one turn at a time per
// conversation, independent of the persistence backend.
type Engine struct {
	store     Store
	profiles  profile.Provider
	intents   *intent.Extractor
	retriever *retrieval.Retriever
	catalog   catalog.Store
	gen       genai.Adapter
	metrics   *observability.Metrics
	log       *zap.Logger
	opts      Options

	mu           sync.Mutex
	inflight     map[string]bool   // conversation id -> turn in progress
	starting     map[string]bool   // user id -> start in progress
	activeByUser map[string]string // user id -> active conversation id
}

func NewEngine(
	store Store,
	profiles profile.Provider,
	intents *intent.Extractor,
	retriever *retrieval.Retriever,
	cat catalog.Store,
	gen genai.Adapter,
	metrics *observability.Metrics,
	log *zap.Logger,
	opts Options,
) *Engine {
	return &Engine{
		store:        store,
		profiles:     profiles,
		intents:      intents,
		retriever:    retriever,
		catalog:      cat,
		gen:          gen,
		metrics:      metrics,
		log:          log,
		opts:         opts.withDefaults(),
		inflight:     make(map[string]bool),
		starting:     make(map[string]bool),
		activeByUser: make(map[string]string),
	}
}

// Start opens a conversation for the user and synthesizes the greeting. When
// the user already has an active conversation it is auto-closed (if enabled)
// and reported in the result, or the call fails with
// ErrConversationAlreadyActive.
func (e *Engine) Start(ctx context.Context, userID string) (StartResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return StartResult{}, errors.New("user id is required")
	}

	e.mu.Lock()
	if e.starting[userID] {
		e.mu.Unlock()
		return StartResult{}, ErrConversationAlreadyActive
	}
	e.starting[userID] = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.starting, userID)
		e.mu.Unlock()
	}()

	var res StartResult
	prior, err := e.store.ActiveConversationByUser(ctx, userID)
	if err == nil {
		if !e.opts.AutoCloseActive {
			return StartResult{}, ErrConversationAlreadyActive
		}
		if _, err := e.End(ctx, prior.ID); err != nil {
			return StartResult{}, fmt.Errorf("close prior conversation: %w", err)
		}
		res.ClosedConversationID = prior.ID
	} else if !errors.Is(err, ErrConversationNotFound) {
		return StartResult{}, fmt.Errorf("look up active conversation: %w", err)
	}

	now := time.Now().UTC()
	conv := Conversation{
		ID:             uuid.NewString(),
		UserID:         userID,
		Stage:          StageGreeting,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := e.store.CreateConversation(ctx, conv); err != nil {
		return StartResult{}, fmt.Errorf("create conversation: %w", err)
	}

	e.mu.Lock()
	e.activeByUser[userID] = conv.ID
	e.mu.Unlock()
	e.metrics.ActiveConversations.Inc()

	prof := e.loadProfile(ctx, userID)
	greeting := e.synthesizeGreeting(ctx, prof)

	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Content:        greeting,
		Metadata:       Metadata{Stage: StageGreeting},
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return StartResult{}, fmt.Errorf("persist greeting: %w", err)
	}

	e.metrics.ConversationEvents.WithLabelValues("started").Inc()
	e.log.Info("conversation started",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", userID),
		zap.String("closed_prior", res.ClosedConversationID),
	)

	res.Conversation = conv
	res.Greeting = msg
	return res, nil
}

// SubmitTurn runs one synchronous turn. The user message is persisted before
// any external call; a synthesis failure is a hard error and leaves no
// assistant message behind.
func (e *Engine) SubmitTurn(ctx context.Context, conversationID, text string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, ErrEmptyMessage
	}
	if err := e.beginTurn(conversationID); err != nil {
		return TurnResult{}, err
	}
	defer e.endTurn(conversationID)

	conv, userMsg, err := e.acceptUserMessage(ctx, conversationID, text)
	if err != nil {
		return TurnResult{}, err
	}

	p, err := e.analyzeAndRetrieve(ctx, conv, text)
	if err != nil {
		e.metrics.Turns.WithLabelValues("failed").Inc()
		return TurnResult{}, err
	}

	req := synthesisRequest(p.history, p.products, p.prof, conv.Stage)
	sctx, cancel := context.WithTimeout(ctx, e.opts.SynthesisTimeout)
	defer cancel()
	start := time.Now()
	reply, err := e.gen.StreamReply(sctx, req, func(string) error { return nil })
	e.metrics.ObserveExternalCall("synthesis", time.Since(start))
	if err != nil {
		e.metrics.Turns.WithLabelValues("synthesis_failed").Inc()
		return TurnResult{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	assistant, err := e.finishTurn(ctx, &conv, p, reply.Text, false)
	if err != nil {
		e.metrics.Turns.WithLabelValues("failed").Inc()
		return TurnResult{}, err
	}
	e.metrics.Turns.WithLabelValues("completed").Inc()

	return TurnResult{
		Conversation:     conv,
		UserMessage:      userMsg,
		AssistantMessage: assistant,
		Products:         p.products,
		Intent:           p.desc.Type,
		Stage:            conv.Stage,
	}, nil
}

// SubmitTurnStreaming runs one turn, emitting events while the reply is
// produced. Preconditions are checked and the user message persisted before
// the channel is returned; the caller drains the channel until it closes.
func (e *Engine) SubmitTurnStreaming(ctx context.Context, conversationID, text string) (<-chan stream.Event, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if err := e.beginTurn(conversationID); err != nil {
		return nil, err
	}

	conv, _, err := e.acceptUserMessage(ctx, conversationID, text)
	if err != nil {
		e.endTurn(conversationID)
		return nil, err
	}

	d := stream.NewDispatcher(e.metrics)
	go e.runStreamingTurn(ctx, d, conv, text)
	return d.Events(), nil
}

func (e *Engine) runStreamingTurn(ctx context.Context, d *stream.Dispatcher, conv Conversation, text string) {
	defer e.endTurn(conv.ID)

	p, err := e.analyzeAndRetrieve(ctx, conv, text)
	if err != nil {
		e.metrics.Turns.WithLabelValues("failed").Inc()
		e.failStream(ctx, d, err)
		return
	}

	for _, prod := range p.products {
		if err := d.SendProduct(ctx, prod); err != nil {
			e.abortStreamingTurn(ctx, d, &conv, p, err)
			return
		}
	}

	req := synthesisRequest(p.history, p.products, p.prof, conv.Stage)
	sctx, cancel := context.WithTimeout(ctx, e.opts.SynthesisTimeout)
	defer cancel()
	start := time.Now()
	reply, serr := e.gen.StreamReply(sctx, req, func(delta string) error {
		return d.SendChunk(ctx, delta)
	})
	e.metrics.ObserveExternalCall("synthesis", time.Since(start))
	if serr != nil {
		e.abortStreamingTurn(ctx, d, &conv, p, fmt.Errorf("%w: %v", ErrSynthesisFailed, serr))
		return
	}

	if _, err := e.finishTurn(ctx, &conv, p, reply.Text, false); err != nil {
		e.metrics.Turns.WithLabelValues("failed").Inc()
		e.failStream(ctx, d, err)
		return
	}
	e.metrics.Turns.WithLabelValues("completed").Inc()

	pctx, cancel := persistCtx(ctx)
	defer cancel()
	if err := d.Complete(pctx, stream.Completion{
		ConversationID: conv.ID,
		Content:        reply.Text,
		Intent:         string(p.desc.Type),
		Stage:          string(conv.Stage),
		Products:       productIDs(p.products),
	}); err != nil && !errors.Is(err, stream.ErrTerminated) {
		e.log.Warn("emit terminal complete event", zap.Error(err))
	}
}

// abortStreamingTurn handles a mid-stream failure or cancellation: whatever
// chunk text was delivered is persisted as a partial assistant message, then
// the terminal error event is emitted.
func (e *Engine) abortStreamingTurn(ctx context.Context, d *stream.Dispatcher, conv *Conversation, p pipelineOut, cause error) {
	partial := d.Text()
	if partial == "" {
		e.metrics.Turns.WithLabelValues("synthesis_failed").Inc()
		e.failStream(ctx, d, cause)
		return
	}

	// Cancellation is not data loss: persist past the caller's context.
	pctx, cancel := persistCtx(ctx)
	defer cancel()
	if _, err := e.finishTurn(pctx, conv, p, partial, true); err != nil {
		e.log.Error("persist partial reply", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	e.metrics.Turns.WithLabelValues("partial").Inc()
	e.failStream(ctx, d, cause)
}

func (e *Engine) failStream(ctx context.Context, d *stream.Dispatcher, cause error) {
	pctx, cancel := persistCtx(ctx)
	defer cancel()
	if err := d.Fail(pctx, cause); err != nil && !errors.Is(err, stream.ErrTerminated) {
		e.log.Warn("emit terminal error event", zap.Error(err))
	}
}

// End closes a conversation. Idempotent: ending an already-ended
// conversation returns its terminal state without error.
func (e *Engine) End(ctx context.Context, conversationID string) (Conversation, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	if conv.Status == StatusEnded {
		return conv, nil
	}

	now := time.Now().UTC()
	conv.Status = StatusEnded
	conv.Stage = StageClosed
	conv.EndedAt = &now
	conv.LastActivityAt = now
	if err := e.store.UpdateConversation(ctx, conv); err != nil {
		return Conversation{}, fmt.Errorf("end conversation: %w", err)
	}

	e.mu.Lock()
	tracked := e.activeByUser[conv.UserID] == conv.ID
	if tracked {
		delete(e.activeByUser, conv.UserID)
	}
	e.mu.Unlock()

	// Only conversations this process counted up get counted down; ending a
	// conversation left over from an earlier process must not drift the gauge.
	if tracked {
		e.metrics.ActiveConversations.Dec()
	}
	e.metrics.ConversationEvents.WithLabelValues("ended").Inc()
	e.log.Info("conversation ended", zap.String("conversation_id", conv.ID))
	return conv, nil
}

// Conversation returns one conversation with its full message history.
func (e *Engine) Conversation(ctx context.Context, id string) (Conversation, []Message, error) {
	conv, err := e.store.GetConversation(ctx, id)
	if err != nil {
		return Conversation{}, nil, err
	}
	msgs, err := e.store.ListMessages(ctx, id)
	if err != nil {
		return Conversation{}, nil, err
	}
	return conv, msgs, nil
}

func (e *Engine) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	return e.store.ListConversationsByUser(ctx, userID)
}

// DiscussedProducts resolves the conversation's discussed product ids
// against the catalog, preserving discussion order.
func (e *Engine) DiscussedProducts(ctx context.Context, conversationID string) ([]catalog.Product, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(conv.ProductsDiscussed) == 0 {
		return nil, nil
	}
	return e.catalog.GetByIDs(ctx, conv.ProductsDiscussed)
}

func (e *Engine) beginTurn(conversationID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[conversationID] {
		return ErrTurnInProgress
	}
	e.inflight[conversationID] = true
	return nil
}

func (e *Engine) endTurn(conversationID string) {
	e.mu.Lock()
	delete(e.inflight, conversationID)
	e.mu.Unlock()
}

// acceptUserMessage validates the conversation and durably persists the user
// message before any external call happens.
func (e *Engine) acceptUserMessage(ctx context.Context, conversationID, text string) (Conversation, Message, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return Conversation{}, Message{}, err
	}
	if !conv.Active() {
		return Conversation{}, Message{}, ErrConversationClosed
	}

	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        text,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return Conversation{}, Message{}, fmt.Errorf("persist user message: %w", err)
	}
	return conv, msg, nil
}

// pipelineOut carries everything the synthesis and persistence steps need.
type pipelineOut struct {
	prof     profile.Profile
	desc     intent.Descriptor
	history  []Message
	products []catalog.Product
	category string
}

// analyzeAndRetrieve runs intent extraction and retrieval. Both degrade
// rather than fail; only persistence reads are fatal here.
func (e *Engine) analyzeAndRetrieve(ctx context.Context, conv Conversation, text string) (pipelineOut, error) {
	out := pipelineOut{prof: e.loadProfile(ctx, conv.UserID)}

	msgs, err := e.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return pipelineOut{}, fmt.Errorf("load history: %w", err)
	}
	out.history = lastMessages(msgs, e.opts.HistoryWindow)

	ictx, cancel := context.WithTimeout(ctx, e.opts.IntentTimeout)
	start := time.Now()
	desc, ierr := e.intents.Extract(ictx, text, toGenMessages(out.history), out.prof, conv.ProductsDiscussed)
	cancel()
	e.metrics.ObserveExternalCall("intent", time.Since(start))
	if ierr != nil {
		// Degrade to a raw-text search rather than aborting the turn.
		e.log.Warn("intent extraction degraded", zap.String("conversation_id", conv.ID), zap.Error(ierr))
	}
	out.desc = desc

	// Compare and question turns reference prior products directly; no fresh
	// retrieval is needed.
	if (desc.Type == intent.TypeCompare || desc.Type == intent.TypeQuestion) && len(desc.ProductIDs) > 0 {
		products, err := e.catalog.GetByIDs(ctx, desc.ProductIDs)
		if err != nil {
			e.log.Warn("resolve referenced products", zap.Error(err))
		}
		out.products = products
		out.category = conv.Context.CategoryHint
		return out, nil
	}

	q := e.buildQuery(text, desc, conv, out.prof)
	out.category = q.Category

	rctx, cancel := context.WithTimeout(ctx, e.opts.RetrievalTimeout)
	start = time.Now()
	res, rerr := e.retriever.Retrieve(rctx, q, out.prof, conv.ProductsDiscussed)
	cancel()
	e.metrics.ObserveExternalCall("retrieval", time.Since(start))
	if rerr != nil {
		// An empty candidate set is a valid outcome; synthesis will ask a
		// clarifying question instead of recommending.
		e.metrics.RetrievalDegraded.Inc()
		e.log.Warn("retrieval degraded", zap.String("conversation_id", conv.ID), zap.Error(rerr))
		return out, nil
	}
	if res.Degraded {
		e.metrics.RetrievalDegraded.Inc()
	}

	top := res.Candidates
	if len(top) > e.opts.TopKProducts {
		top = top[:e.opts.TopKProducts]
	}
	for _, c := range top {
		out.products = append(out.products, c.Product)
	}
	return out, nil
}

func (e *Engine) buildQuery(text string, desc intent.Descriptor, conv Conversation, prof profile.Profile) retrieval.Query {
	q := retrieval.Query{
		Text:     text,
		PriceMin: prof.BudgetMin,
		PriceMax: prof.BudgetMax,
		Limit:    e.opts.RetrieveLimit,
	}
	switch {
	case len(desc.Categories) > 0:
		q.Category = desc.Categories[0]
	case conv.Context.CategoryHint != "":
		q.Category = conv.Context.CategoryHint
	case len(prof.PreferredCategories) > 0:
		q.Category = prof.PreferredCategories[0]
	}
	if len(desc.Brands) > 0 {
		q.Brand = desc.Brands[0]
	}
	if desc.Budget != nil {
		q.PriceMax = *desc.Budget
		if q.PriceMin > q.PriceMax {
			q.PriceMin = 0
		}
	}
	return q
}

// finishTurn advances the stage, persists the assistant message, and updates
// the conversation snapshot. Persistence failures here fail the turn.
func (e *Engine) finishTurn(ctx context.Context, conv *Conversation, p pipelineOut, content string, partial bool) (Message, error) {
	refs := productIDs(p.products)
	signals := updateContext(&conv.Context, p.desc, p.category, refs)
	conv.Stage = advanceStage(conv.Stage, signals, e.opts.SlotStreakTurns)
	conv.ProductsDiscussed = appendDiscussed(conv.ProductsDiscussed, refs)
	conv.LastActivityAt = time.Now().UTC()

	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Content:        content,
		Intent:         string(p.desc.Type),
		Metadata: Metadata{
			Products: productRefs(p.products),
			Stage:    conv.Stage,
			Partial:  partial,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return Message{}, fmt.Errorf("persist assistant message: %w", err)
	}
	if err := e.store.UpdateConversation(ctx, *conv); err != nil {
		return Message{}, fmt.Errorf("update conversation: %w", err)
	}
	return msg, nil
}

func (e *Engine) loadProfile(ctx context.Context, userID string) profile.Profile {
	prof, err := e.profiles.Get(ctx, userID)
	if err != nil {
		// An incomplete or missing profile never blocks a conversation.
		e.log.Warn("profile lookup degraded", zap.String("user_id", userID), zap.Error(err))
		return profile.Profile{UserID: userID}
	}
	return prof
}

func (e *Engine) synthesizeGreeting(ctx context.Context, prof profile.Profile) string {
	gctx, cancel := context.WithTimeout(ctx, e.opts.SynthesisTimeout)
	defer cancel()
	start := time.Now()
	text, err := e.gen.Complete(gctx, greetingSystemPrompt, greetingInput(prof))
	e.metrics.ObserveExternalCall("greeting", time.Since(start))
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			e.log.Warn("greeting synthesis degraded", zap.Error(err))
		}
		return staticGreeting(prof)
	}
	return text
}

func productIDs(products []catalog.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func productRefs(products []catalog.Product) []ProductRef {
	out := make([]ProductRef, 0, len(products))
	for _, p := range products {
		out = append(out, ProductRef{ID: p.ID, Name: p.Name, Price: p.Price})
	}
	return out
}

// persistCtx detaches from the caller's cancellation so terminal bookkeeping
// still lands, bounded so a gone consumer cannot wedge the turn.
func persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}
