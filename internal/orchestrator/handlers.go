package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"modkeeper/internal/conversation"
	"modkeeper/internal/corpus"
	"modkeeper/internal/llm"
	"modkeeper/internal/moderation"
	"modkeeper/internal/store"
)

const noSelectionMessage = "No post is currently selected. Please select a post first, then tell me what to do with it."

// handleAction applies an approve/reject/flag decision to the selected
// post. When the classifier could not pin down the action, a parsing
// agent is consulted before giving up.
func (r *Router) handleAction(ctx context.Context, input string, it conversation.Intent, _ corpus.Provider) *Reply {
	postID := r.state.SelectedPostID
	if postID == "" {
		return &Reply{Type: ReplyError, Message: noSelectionMessage}
	}

	action := it.Secondary
	if action != conversation.ApprovePost && action != conversation.RejectPost && action != conversation.FlagPost {
		parsed, err := r.parseAction(ctx, input)
		if err != nil {
			r.logger.Warn("action parsing failed", zap.Error(err))
			return &Reply{
				Type:    ReplyError,
				Message: "I couldn't determine which action to take. Try 'approve', 'reject' or 'flag'.",
			}
		}
		action = parsed
	}

	var outcome *store.Outcome
	var tool string
	switch action {
	case conversation.ApprovePost:
		outcome = r.store.Approve(postID, input)
		tool = moderation.ToolApprovePost
		r.state.ClearPost()
	case conversation.RejectPost:
		outcome = r.store.Reject(postID, input)
		tool = moderation.ToolRejectPost
		r.state.ClearPost()
	case conversation.FlagPost:
		outcome = r.store.Flag(postID, input)
		tool = moderation.ToolFlagForReview
	default:
		return &Reply{
			Type:    ReplyError,
			Message: "I couldn't determine which action to take. Try 'approve', 'reject' or 'flag'.",
		}
	}

	return &Reply{
		Type:         ReplyAction,
		Message:      outcome.Message,
		Action:       outcome.Action,
		PostID:       postID,
		ActionsTaken: []string{tool},
		ToolResult:   outcome.ToolResult,
	}
}

// handleQuery answers read-only questions from the stored decision data.
func (r *Router) handleQuery(ctx context.Context, input string, it conversation.Intent, provider corpus.Provider) *Reply {
	switch it.Secondary {
	case conversation.QueryPostStatus:
		return r.queryPostStatus(it)
	case conversation.QueryRules:
		return r.queryRules(provider)
	case conversation.ExplainDecision:
		return r.explainDecision()
	case conversation.SummarizePost:
		return r.summarizePost(ctx)
	default:
		return r.queryAgent(ctx, input)
	}
}

func (r *Router) queryPostStatus(it conversation.Intent) *Reply {
	id := r.state.SelectedPostID
	if id == "" && len(it.Entities.PostIDs) > 0 {
		id = it.Entities.PostIDs[0]
	}

	sum := r.store.Summary()
	if id == "" {
		return &Reply{
			Type: ReplyQuery,
			Message: fmt.Sprintf("Currently %d posts are flagged for review and %d are approved.",
				sum.TodoCount, sum.ApprovedCount),
			Data: map[string]string{
				"todo_count":     strconv.Itoa(sum.TodoCount),
				"approved_count": strconv.Itoa(sum.ApprovedCount),
			},
		}
	}

	for _, post := range sum.TodoPosts {
		if post.ID == id {
			return &Reply{
				Type:    ReplyQuery,
				Message: store.DescribePost(post, "flagged"),
				PostID:  id,
				Data:    map[string]string{"status": "flagged"},
			}
		}
	}
	for _, post := range sum.ApprovedPosts {
		if post.ID == id {
			return &Reply{
				Type:    ReplyQuery,
				Message: store.DescribePost(post, "approved"),
				PostID:  id,
				Data:    map[string]string{"status": "approved"},
			}
		}
	}
	return &Reply{
		Type:    ReplyQuery,
		Message: fmt.Sprintf("Post %s is not tracked. It may not have been reviewed yet.", id),
		PostID:  id,
		Data:    map[string]string{"status": "unknown"},
	}
}

func (r *Router) queryRules(provider corpus.Provider) *Reply {
	if provider == nil {
		return &Reply{Type: ReplyError, Message: "No community data source is configured."}
	}
	snapshot, err := provider.Load()
	if err != nil {
		return &Reply{Type: ReplyError, Message: fmt.Sprintf("Could not load community rules: %v", err)}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Community rules for %s:\n", snapshot.Subreddit)
	for _, rule := range snapshot.Rules {
		fmt.Fprintf(&b, "- %s: %s\n", rule.ID, rule.ShortName)
	}
	return &Reply{
		Type:    ReplyQuery,
		Message: b.String(),
		Data:    map[string]string{"rule_count": strconv.Itoa(len(snapshot.Rules))},
	}
}

// confidenceInterpretation maps a confidence bucket to moderator-facing
// guidance.
func confidenceInterpretation(level moderation.Level) string {
	switch level {
	case moderation.LevelHigh:
		return "The system is highly confident in this decision."
	case moderation.LevelMedium:
		return "The system is moderately confident in this decision; a second look may be worthwhile."
	default:
		return "The system has low confidence in this decision; please review it manually."
	}
}

func (r *Router) explainDecision() *Reply {
	post := r.state.SelectedPostDetails
	if post == nil {
		return &Reply{Type: ReplyError, Message: noSelectionMessage}
	}

	var b strings.Builder
	if post.Violation {
		fmt.Fprintf(&b, "Post %s was flagged for violating %s.\n", post.ID, post.RuleID)
	} else {
		fmt.Fprintf(&b, "Post %s was not found to violate any rule.\n", post.ID)
	}
	if post.Explanation != "" {
		fmt.Fprintf(&b, "Reasoning: %s\n", post.Explanation)
	}
	data := map[string]string{"violation": strconv.FormatBool(post.Violation)}
	if post.Confidence != nil {
		fmt.Fprintf(&b, "Confidence: %.4f (%s). %s\n",
			*post.Confidence, post.ConfidenceLvl, confidenceInterpretation(post.ConfidenceLvl))
		data["confidence"] = strconv.FormatFloat(*post.Confidence, 'f', 4, 64)
		data["confidence_level"] = string(post.ConfidenceLvl)
	}
	return &Reply{Type: ReplyQuery, Message: b.String(), PostID: post.ID, Data: data}
}

const summarizeSystemPrompt = `You are a helpful moderation assistant. Summarize the given post in 2-3 sentences for a busy moderator. Mention the topic and anything relevant to moderation.`

func (r *Router) summarizePost(ctx context.Context) *Reply {
	post := r.state.SelectedPostDetails
	if post == nil {
		return &Reply{Type: ReplyError, Message: noSelectionMessage}
	}

	text, err := llm.CompleteText(ctx, r.client, llm.Request{
		Model:       r.model,
		System:      summarizeSystemPrompt,
		User:        fmt.Sprintf("Title: %s\n\nBody: %s", post.Title, post.Body),
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		r.logger.Warn("summarize failed", zap.Error(err))
		return &Reply{
			Type:    ReplyQuery,
			Message: fmt.Sprintf("Post %s: %s", post.ID, moderation.Truncate(post.Title, moderation.MaxTitleLen)),
			PostID:  post.ID,
		}
	}
	return &Reply{Type: ReplyQuery, Message: text, PostID: post.ID}
}

const querySystemPrompt = `You are a helpful moderation assistant. Answer the moderator's question using only the provided moderation data. Be concise. If the data does not contain the answer, say so.`

// queryAgent answers free-form queries over a digest of the store.
func (r *Router) queryAgent(ctx context.Context, input string) *Reply {
	sum := r.store.Summary()
	var digest strings.Builder
	fmt.Fprintf(&digest, "Flagged posts: %d\nApproved posts: %d\n", sum.TodoCount, sum.ApprovedCount)
	for _, post := range sum.TodoPosts {
		fmt.Fprintf(&digest, "flagged %s: %s (%s)\n", post.ID, post.Title, post.RuleID)
	}
	for _, post := range sum.ApprovedPosts {
		fmt.Fprintf(&digest, "approved %s: %s\n", post.ID, post.Title)
	}

	text, err := llm.CompleteText(ctx, r.client, llm.Request{
		Model:       r.model,
		System:      querySystemPrompt,
		User:        fmt.Sprintf("Moderation data:\n%s\nQuestion: %s", digest.String(), input),
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		r.logger.Warn("query agent failed", zap.Error(err))
		return &Reply{
			Type: ReplyQuery,
			Message: fmt.Sprintf("Currently %d posts are flagged for review and %d are approved.",
				sum.TodoCount, sum.ApprovedCount),
		}
	}
	return &Reply{Type: ReplyQuery, Message: text}
}

// handleSystem runs operational commands: batch auto-review when the
// message asks for a check, otherwise a moderation summary.
func (r *Router) handleSystem(ctx context.Context, input string, _ conversation.Intent, provider corpus.Provider) *Reply {
	if provider == nil {
		return &Reply{Type: ReplyError, Message: "No community data source is configured."}
	}

	// The command itself may carry an override instruction; extract it
	// before the review runs so the batch sees it.
	r.extractOverride(ctx, input, provider)

	approved, flagged, err := r.store.AutoReview(ctx, provider, r.state.OverrideRules())
	if err != nil {
		return &Reply{Type: ReplyError, Message: fmt.Sprintf("Auto review failed: %v", err)}
	}
	return &Reply{
		Type: ReplySystem,
		Message: fmt.Sprintf("Checked %d posts: %d approved, %d flagged for review.",
			len(approved)+len(flagged), len(approved), len(flagged)),
		Approved: approved,
		Flagged:  flagged,
	}
}

// extractOverride runs the extractor over one instruction and records the
// result against the selected post. Extraction failures are logged and
// swallowed; they never abort the surrounding operation.
func (r *Router) extractOverride(ctx context.Context, input string, provider corpus.Provider) string {
	var rules []moderation.Rule
	if snapshot, err := provider.Load(); err == nil {
		rules = snapshot.Rules
	}

	extracted, err := r.extractor.Extract(ctx, input, r.state.SelectedPostDetails, rules, r.state.OverrideRules())
	if err != nil {
		r.logger.Warn("override extraction failed", zap.Error(err))
		return ""
	}
	if extracted != "" {
		r.state.AddOverrideRule(extracted)
		r.store.AddOverrideToSelected(extracted)
	}
	return extracted
}

// applyOverrideAndReReview is the shared feedback path: extract an
// override from the instruction, then re-review the selected post with
// the accumulated overrides.
func (r *Router) applyOverrideAndReReview(ctx context.Context, input string, provider corpus.Provider) *Reply {
	extracted := r.extractOverride(ctx, input, provider)

	outcome := r.store.ReReview(ctx, provider, r.state.OverrideRules(), input)
	if len(outcome.Approved) > 0 {
		r.state.ClearPost()
	}

	message := outcome.Message
	if extracted != "" {
		message = fmt.Sprintf("Noted: %q.\n%s", extracted, outcome.Message)
	}
	return &Reply{
		Type:         ReplyFeedback,
		Message:      message,
		PostID:       outcome.PostID,
		ActionsTaken: outcome.ActionsTaken,
		ToolResult:   outcome.ToolResult,
		Approved:     outcome.Approved,
		Flagged:      outcome.Flagged,
	}
}

// handleFeedback turns moderator pushback into an override rule and
// re-reviews the selected post with the accumulated overrides. Feedback
// only reaches the review path when a post is selected AND the classifier
// flagged it as requiring review or carrying an override rule; anything
// else is acknowledged without touching the store. The re-review can
// approve the post but never auto-rejects it.
func (r *Router) handleFeedback(ctx context.Context, input string, it conversation.Intent, provider corpus.Provider) *Reply {
	if r.state.SelectedPostDetails == nil || (!it.RequiresReview && !it.HasOverrideRules) {
		return &Reply{
			Type:    ReplyFeedback,
			Message: "Thank you for your feedback. I'll take it into account.",
		}
	}
	if provider == nil {
		return &Reply{Type: ReplyError, Message: "No community data source is configured."}
	}
	return r.applyOverrideAndReReview(ctx, input, provider)
}

const conversationSystemPrompt = `You are a friendly assistant for a community moderation team. You help moderators review flagged posts, explain decisions, and manage the review queue. Keep replies short and practical. If the moderator seems to want an action taken, remind them to select a post first.`

// handleConversation is the default path: plain chat grounded in a short
// digest of the session. A message classified as conversation can still
// carry an override rule; with a post selected it takes the same
// override-then-re-review path as feedback.
func (r *Router) handleConversation(ctx context.Context, input string, it conversation.Intent, provider corpus.Provider) *Reply {
	if it.HasOverrideRules && r.state.SelectedPostDetails != nil && provider != nil {
		return r.applyOverrideAndReReview(ctx, input, provider)
	}

	var digest strings.Builder
	if r.state.SelectedPostID != "" {
		fmt.Fprintf(&digest, "Selected post: %s\n", r.state.SelectedPostID)
	}
	for _, turn := range r.state.RecentContext(r.recent) {
		fmt.Fprintf(&digest, "moderator: %s\nassistant: %s\n", turn.UserMessage, turn.AgentReply)
	}

	text, err := llm.CompleteText(ctx, r.client, llm.Request{
		Model:       r.model,
		System:      conversationSystemPrompt,
		User:        fmt.Sprintf("%s\nmoderator: %s", digest.String(), input),
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		r.logger.Warn("conversation agent failed", zap.Error(err))
		return &Reply{
			Type:    ReplyConversation,
			Message: "I'm here to help with moderation. You can ask me to check posts, explain a decision, or act on a selected post.",
		}
	}
	return &Reply{Type: ReplyConversation, Message: text}
}

const actionParseSystemPrompt = `You parse a moderator's message into a moderation action.
Respond with ONLY a JSON object: {"action": "approve" | "reject" | "flag" | "unknown", "reason": "short reason"}.`

// parseAction asks the parsing agent which action a message requests.
func (r *Router) parseAction(ctx context.Context, input string) (conversation.Secondary, error) {
	var parsed struct {
		Action string `json:"action"`
		Reason string `json:"reason"`
	}
	err := llm.CompleteJSON(ctx, r.client, llm.Request{
		Model:       r.model,
		System:      actionParseSystemPrompt,
		User:        input,
		Temperature: 0,
		MaxTokens:   100,
	}, &parsed)
	if err != nil {
		return "", err
	}

	switch strings.ToLower(parsed.Action) {
	case "approve":
		return conversation.ApprovePost, nil
	case "reject":
		return conversation.RejectPost, nil
	case "flag":
		return conversation.FlagPost, nil
	default:
		return "", fmt.Errorf("unrecognized action %q", parsed.Action)
	}
}
