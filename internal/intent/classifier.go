// Package intent classifies user messages into the primary/secondary
// intents the orchestrator routes on.
package intent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"modkeeper/internal/conversation"
	"modkeeper/internal/llm"
	"modkeeper/internal/moderation"
)

const systemPrompt = `You are an Intent Classification Agent for a community moderation system.
Analyze user messages and classify their intent for proper routing.

PRIMARY INTENTS:
- MODERATION_ACTION: User explicitly wants to approve, reject, or flag posts (e.g., 'approve this post', 'reject this')
- MODERATION_QUERY: User asking about posts, rules, or status (including summarize, explain, describe post content)
- CONVERSATION: General chat, clarification, context discussion
- SYSTEM_COMMAND: Auto-review, configuration, system operations
- FEEDBACK: User providing guidance, override rules, or instructions about how to handle content
SECONDARY INTENTS (for MODERATION_ACTION):
- APPROVE_POST, REJECT_POST, FLAG_POST

SECONDARY INTENTS (for MODERATION_QUERY):
- QUERY_POST_STATUS, QUERY_RULES, EXPLAIN_DECISION, SUMMARIZE_POST

QUERY CLASSIFICATION GUIDELINES:
- 'what's the issue', 'why flagged', 'explain decision', 'what's wrong' = EXPLAIN_DECISION
- 'summarize post', 'what's this about', 'post content' = SUMMARIZE_POST
- 'post status', 'is approved', 'what happened to post' = QUERY_POST_STATUS
- 'what are rules', 'rule details', 'moderation guidelines' = QUERY_RULES

CRITICAL DISTINCTION:
- 'ignore this rule' = FEEDBACK (override instruction, not rejection)
- 'be lenient' = FEEDBACK (guidance, not action)
- 'overlook this violation' = FEEDBACK (override instruction)
- 'approve this post' = MODERATION_ACTION (explicit action)
- 'reject this post' = MODERATION_ACTION (explicit action)

OVERRIDE RULES: Phrases like 'ignore', 'overlook', 'be lenient', 'allow this', 'make exception' indicate override rules.
These should be FEEDBACK with has_override_rules=true and requires_review=true.
IMPORTANT: Each 'ignore rule X' command should trigger has_override_rules=true, even if other override rules exist.
Multiple different override rules can be created for different rule IDs.

Extract entities: post_ids, rule_references, action_types
Determine if re-review is needed or if new override rules are present.

Respond with JSON: {
  "primary_intent": "string",
  "secondary_intent": "string or null",
  "confidence": 0.0-1.0,
  "entities": {"post_ids": [], "rule_refs": [], "actions": []},
  "requires_review": boolean,
  "has_override_rules": boolean,
  "tools_needed": []
}`

// Classifier delegates intent classification to the external classifier,
// feeding it a digest of the conversation context.
type Classifier struct {
	client llm.Client
	model  string
	logger *zap.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(client llm.Client, model string, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{client: client, model: model, logger: logger}
}

type classification struct {
	PrimaryIntent    string                `json:"primary_intent"`
	SecondaryIntent  *string               `json:"secondary_intent"`
	Confidence       float64               `json:"confidence"`
	Entities         conversation.Entities `json:"entities"`
	RequiresReview   bool                  `json:"requires_review"`
	HasOverrideRules bool                  `json:"has_override_rules"`
	ToolsNeeded      []string              `json:"tools_needed"`
}

// Classify returns the intent for one message. Classifier failure yields
// the conversation fallback intent rather than failing the turn.
func (c *Classifier) Classify(ctx context.Context, message string, state *conversation.State) conversation.Intent {
	user := fmt.Sprintf("Message: %s\n\nContext: %s", message, ContextDigest(state))

	var result classification
	err := llm.CompleteJSON(ctx, c.client, llm.Request{
		Model:       c.model,
		System:      systemPrompt,
		User:        user,
		Temperature: 0.1,
		MaxTokens:   400,
	}, &result)
	if err != nil {
		c.logger.Warn("intent classification failed", zap.Error(err))
		return conversation.Fallback()
	}

	intent := conversation.Intent{
		Primary:          conversation.Primary(result.PrimaryIntent),
		Confidence:       result.Confidence,
		Entities:         result.Entities,
		RequiresReview:   result.RequiresReview,
		HasOverrideRules: result.HasOverrideRules,
		ToolCallsNeeded:  result.ToolsNeeded,
	}
	if intent.Primary == "" {
		intent.Primary = conversation.Conversation
	}
	if intent.Confidence == 0 {
		intent.Confidence = 0.5
	}
	if result.SecondaryIntent != nil {
		intent.Secondary = conversation.Secondary(*result.SecondaryIntent)
	}
	return intent
}

// ContextDigest renders the selected post snapshot and recent turns into
// the context block handed to the classifier agents.
func ContextDigest(state *conversation.State) string {
	if state == nil {
		return "No previous context."
	}

	var parts []string
	if state.SelectedPostID != "" {
		parts = append(parts, fmt.Sprintf("Selected post ID: %s", state.SelectedPostID))
		if details := state.SelectedPostDetails; details != nil {
			parts = append(parts, fmt.Sprintf("Post title: %s", details.Title))
			parts = append(parts, fmt.Sprintf("Post content: %s", moderation.Truncate(details.Body, 500)))
			if details.Explanation != "" {
				parts = append(parts, fmt.Sprintf("Moderation explanation: %s", details.Explanation))
			}
			if len(details.OverrideRules) > 0 {
				parts = append(parts, fmt.Sprintf("Existing override rules: %v", details.OverrideRules))
			}
		}
	}

	if len(state.History) > 0 {
		parts = append(parts, "Recent conversation:")
		for _, turn := range state.RecentContext(2) {
			parts = append(parts, fmt.Sprintf("User: %s", turn.UserMessage))
			parts = append(parts, fmt.Sprintf("Assistant: %s", turn.AgentReply))
		}
	}

	if len(parts) == 0 {
		return "No previous context."
	}
	return strings.Join(parts, "\n")
}
