// Package orchestrator routes each user message through intent
// classification to the matching handler and guarantees that every turn,
// including failed ones, is recorded in the conversation history exactly
// once.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"modkeeper/internal/bus"
	"modkeeper/internal/conversation"
	"modkeeper/internal/corpus"
	"modkeeper/internal/intent"
	"modkeeper/internal/llm"
	"modkeeper/internal/moderation"
	"modkeeper/internal/override"
	"modkeeper/internal/store"
)

// ReplyType discriminates the Reply union: exactly the fields relevant
// to the type are populated.
type ReplyType string

const (
	ReplyConversation ReplyType = "conversation"
	ReplyAction       ReplyType = "action"
	ReplyQuery        ReplyType = "query"
	ReplySystem       ReplyType = "system"
	ReplyFeedback     ReplyType = "feedback"
	ReplyError        ReplyType = "error"
)

// Reply is the structured result of one handled turn.
type Reply struct {
	Type         ReplyType
	Message      string
	Action       string
	PostID       string
	ActionsTaken []string
	ToolResult   *moderation.ToolResult
	Approved     []moderation.Post
	Flagged      []moderation.Post
	Data         map[string]string
}

type handlerFunc func(ctx context.Context, input string, it conversation.Intent, provider corpus.Provider) *Reply

// Router is the conversational front door: it owns the session state and
// dispatches classified messages to moderation, query, system, feedback
// and plain-conversation handlers.
type Router struct {
	classifier *intent.Classifier
	store      *store.Store
	state      *conversation.State
	extractor  *override.Extractor
	client     llm.Client
	model      string
	recent     int
	bus        *bus.Bus
	logger     *zap.Logger

	handlers map[conversation.Primary]handlerFunc
}

// Option adjusts a Router.
type Option func(*Router)

// WithRecentTurns sets how many prior turns feed the conversation digest.
func WithRecentTurns(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.recent = n
		}
	}
}

// New wires a Router. The router subscribes to selection events so the
// conversation state tracks the store's selection; both are only ever
// driven from the interactive thread.
func New(classifier *intent.Classifier, st *store.Store, extractor *override.Extractor, client llm.Client, model string, b *bus.Bus, logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		classifier: classifier,
		store:      st,
		state:      conversation.NewState(),
		extractor:  extractor,
		client:     client,
		model:      model,
		recent:     2,
		bus:        b,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.handlers = map[conversation.Primary]handlerFunc{
		conversation.ModerationAction: r.handleAction,
		conversation.ModerationQuery:  r.handleQuery,
		conversation.SystemCommand:    r.handleSystem,
		conversation.Feedback:         r.handleFeedback,
		conversation.Conversation:     r.handleConversation,
	}

	if b != nil {
		b.Subscribe(bus.EventPostSelected, func(payload any) {
			event, ok := payload.(bus.PostSelected)
			if !ok {
				return
			}
			r.state.SelectPost(event.PostID, r.store.SelectedPost())
		})
		b.Subscribe(bus.EventPostDeselected, func(payload any) {
			r.state.ClearPost()
		})
	}
	return r
}

// State exposes the session state for the view layer.
func (r *Router) State() *conversation.State { return r.state }

// SessionSummary captures the session so far for display.
type SessionSummary struct {
	TotalTurns     int
	CurrentIntent  string
	SelectedPostID string
	OverrideRules  []string
	RecentActions  []string
}

// ConversationSummary reports turn count, the last classified intent,
// the current selection and the actions taken in the recent turns.
func (r *Router) ConversationSummary() SessionSummary {
	summary := SessionSummary{
		TotalTurns:     len(r.state.History),
		SelectedPostID: r.state.SelectedPostID,
		OverrideRules:  r.state.OverrideRules(),
	}
	if r.state.CurrentIntent != nil {
		summary.CurrentIntent = string(r.state.CurrentIntent.Primary)
	}
	for _, turn := range r.state.RecentContext(r.recent) {
		summary.RecentActions = append(summary.RecentActions, turn.ActionsTaken...)
	}
	return summary
}

// Handle classifies one user message and dispatches it. An empty message
// is rejected before classification and never enters the history. A
// panicking handler is converted into an error reply; in every other case
// the turn is appended to the history exactly once before Handle returns.
func (r *Router) Handle(ctx context.Context, input string, provider corpus.Provider) (reply *Reply) {
	if strings.TrimSpace(input) == "" {
		return &Reply{Type: ReplyError, Message: "Please provide a message."}
	}

	it := conversation.Fallback()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panic", zap.Any("panic", rec), zap.String("input", input))
			reply = &Reply{
				Type:    ReplyError,
				Message: fmt.Sprintf("I encountered an error processing your request: %v", rec),
			}
		}
		r.state.AddTurn(input, it, reply.Message, reply.ActionsTaken)
		if r.bus != nil {
			r.bus.Publish(bus.EventConversationTurn, bus.ConversationTurn{
				UserMessage: input,
				Intent:      string(it.Primary),
				ReplyType:   string(reply.Type),
			})
		}
	}()

	it = r.classifier.Classify(ctx, input, r.state)
	r.logger.Debug("intent classified",
		zap.String("primary", string(it.Primary)),
		zap.String("secondary", string(it.Secondary)),
		zap.Float64("confidence", it.Confidence))

	handler, ok := r.handlers[it.Primary]
	if !ok {
		handler = r.handleConversation
	}
	reply = handler(ctx, input, it, provider)
	return reply
}
