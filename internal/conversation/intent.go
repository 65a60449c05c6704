// Package conversation holds the per-session mutable state: classified
// intents, the turn history, and the selected-post snapshot with its
// accumulated override rules.
package conversation

// Primary is the top-level classification of one user message.
type Primary string

const (
	ModerationAction Primary = "MODERATION_ACTION"
	ModerationQuery  Primary = "MODERATION_QUERY"
	Conversation     Primary = "CONVERSATION"
	SystemCommand    Primary = "SYSTEM_COMMAND"
	Feedback         Primary = "FEEDBACK"
)

// Secondary refines a primary intent.
type Secondary string

const (
	// MODERATION_ACTION refinements.
	ApprovePost Secondary = "APPROVE_POST"
	RejectPost  Secondary = "REJECT_POST"
	FlagPost    Secondary = "FLAG_POST"

	// MODERATION_QUERY refinements.
	QueryPostStatus Secondary = "QUERY_POST_STATUS"
	QueryRules      Secondary = "QUERY_RULES"
	ExplainDecision Secondary = "EXPLAIN_DECISION"
	SummarizePost   Secondary = "SUMMARIZE_POST"
)

// Entities are the references extracted from a message.
type Entities struct {
	PostIDs  []string `json:"post_ids"`
	RuleRefs []string `json:"rule_refs"`
	Actions  []string `json:"actions"`
}

// Intent is the classified purpose of one user message, used to select a
// handler.
type Intent struct {
	Primary          Primary
	Secondary        Secondary
	Confidence       float64
	Entities         Entities
	RequiresReview   bool
	HasOverrideRules bool
	ToolCallsNeeded  []string
}

// Fallback is the intent used when classification fails: the turn is
// treated as plain conversation rather than failing outright.
func Fallback() Intent {
	return Intent{Primary: Conversation, Confidence: 0.5}
}
