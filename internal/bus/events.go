package bus

import "modkeeper/internal/moderation"

// Event type keys. Payloads are the typed structs below; subscribers
// assert the concrete type they expect.
const (
	EventPostSelected          = "post_selected"
	EventPostDeselected        = "post_deselected"
	EventPostReReviewed        = "post_re_reviewed"
	EventPostReReviewedCtx     = "post_re_reviewed_with_context"
	EventBackgroundPostsLoaded = "background_posts_loaded"
	EventRuleExtracted         = "rule_extracted"
	EventConversationTurn      = "conversation_turn"
	EventSamplerStarted        = "background_processor_started"
	EventSamplerStopped        = "background_processor_stopped"
	EventSamplerError          = "background_processor_error"
)

// PostSelected is published when a post becomes the active selection.
type PostSelected struct {
	PostID string
}

// PostDeselected is published when the active selection is cleared.
type PostDeselected struct {
	PostID string
}

// PostReReviewed is published after a single post is re-submitted for a
// fresh verdict. Instruction is set only on the contextual variant.
type PostReReviewed struct {
	PostID        string
	Result        moderation.ReviewResult
	OverrideRules []string
	Instruction   string
}

// BackgroundPostsLoaded carries the outcome of one sampler cycle.
type BackgroundPostsLoaded struct {
	Approved  []moderation.Post
	Flagged   []moderation.Post
	BatchSize int
	Topic     string
}

// RuleExtracted is published when the extractor produces a new override.
type RuleExtracted struct {
	Rule        string
	Instruction string
	PostID      string
}

// ConversationTurn is published after every processed user message.
type ConversationTurn struct {
	UserMessage string
	Intent      string
	ReplyType   string
}

// SamplerStatus is the payload for sampler lifecycle events.
type SamplerStatus struct {
	Status string
	Err    string
}
