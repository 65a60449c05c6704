// Package review implements the post-review boundary: a post (or
// comment) is judged against the community rules, with moderator
// overrides taking absolute precedence, and the verdict is annotated with
// a calibrated confidence score when a violation is found.
package review

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"modkeeper/internal/confidence"
	"modkeeper/internal/llm"
	"modkeeper/internal/moderation"
)

const postSystemPrompt = `You are a Post Review Agent for a community moderation system.
You will be given post data including the post content and community rules.

Analyze the post against the applicable rules to determine if there are any violations.
IMPORTANT: Pay attention to any override_rules provided. These take ABSOLUTE PRECEDENCE over regular rules. Do not make exceptions, the moderator had something on his mind adding the rule.

Respond with ONLY a JSON object containing:
- "violation": boolean indicating if any rules were violated
- "rule_id": string ID of the violated rule (null if no violation, use override rule ID if applicable)
- "explanation": string explaining the violation or why no violation was found (only mention override rules if they were actually applied)

Be concise and decisive in your analysis. Do not mention override rules unless they were actually used in your decision.`

const commentSystemPrompt = `You are a Comment Review Agent for a community moderation system.
You will be given a comment along with the original post content and community rules for context.

Analyze the comment against the applicable rules to determine if there are any violations.
IMPORTANT: Pay attention to any override_rules provided. These take ABSOLUTE PRECEDENCE over regular rules. Do not make exceptions, the moderator had something on his mind adding the rule.

Respond with ONLY a JSON object containing:
- "violation": boolean indicating if any rules were violated
- "rule_id": string ID of the violated rule (null if no violation, use override rule ID if applicable)
- "explanation": string explaining the violation or why no violation was found (only mention override rules if they were actually applied)

Be concise and decisive in your analysis. Do not mention override rules unless they were actually used in your decision.`

// defaultConfidence is attached when the score cannot be computed.
const defaultConfidence = 0.5

// Request is the envelope submitted for one review.
type Request struct {
	Post          moderation.Post
	Subreddit     string
	Rules         []moderation.Rule
	OverrideRules []string
	ReviewTarget  string // "post" or "comment"
	TargetComment string
	Comments      []string
}

// Reviewer produces a verdict for one request. Failures are folded into
// the result (Err set, no violation) so a batch never aborts midway.
type Reviewer interface {
	Review(ctx context.Context, req Request) moderation.ReviewResult
}

// ConfidenceScorer is the slice of the confidence package the reviewer
// needs; injected so tests can stub it.
type ConfidenceScorer interface {
	Score(ctx context.Context, rule, target string) (confidence.Result, error)
}

// AgentReviewer implements Reviewer over the external classifier.
type AgentReviewer struct {
	client llm.Client
	model  string
	scorer ConfidenceScorer
	logger *zap.Logger
}

// NewAgentReviewer creates a reviewer. The scorer may be nil, in which
// case verdicts carry the default confidence.
func NewAgentReviewer(client llm.Client, model string, scorer ConfidenceScorer, logger *zap.Logger) *AgentReviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentReviewer{client: client, model: model, scorer: scorer, logger: logger}
}

type envelope struct {
	Task          string                    `json:"task"`
	ReviewTarget  string                    `json:"review_target"`
	Post          envelopePost              `json:"post"`
	Subreddit     string                    `json:"subreddit"`
	Rules         []moderation.Rule         `json:"rules"`
	OverrideRules []moderation.OverrideRule `json:"override_rules,omitempty"`
	TargetComment *envelopeComment          `json:"target_comment,omitempty"`
	Comments      []string                  `json:"comments,omitempty"`
}

type envelopePost struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	ID    string `json:"id"`
}

type envelopeComment struct {
	Body string `json:"body"`
}

type verdict struct {
	Violation   bool    `json:"violation"`
	RuleID      *string `json:"rule_id"`
	Explanation string  `json:"explanation"`
}

// Review submits the envelope to the classifier and interprets the
// verdict. Transport failures and malformed output become non-violation
// results with Err set and the failure echoed in the explanation.
func (r *AgentReviewer) Review(ctx context.Context, req Request) moderation.ReviewResult {
	target := req.ReviewTarget
	if target == "" {
		target = "post"
	}

	env := envelope{
		Task:         fmt.Sprintf("%s review", target),
		ReviewTarget: target,
		Post: envelopePost{
			Title: req.Post.Title,
			Body:  req.Post.Body,
			ID:    req.Post.ID,
		},
		Subreddit:     req.Subreddit,
		Rules:         req.Rules,
		OverrideRules: moderation.WrapOverrides(req.OverrideRules),
	}
	system := postSystemPrompt
	if target == "comment" {
		system = commentSystemPrompt
		env.TargetComment = &envelopeComment{Body: req.TargetComment}
		env.Comments = req.Comments
	}

	payload, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return errorResult(err)
	}

	var v verdict
	err = llm.CompleteJSON(ctx, r.client, llm.Request{
		Model:       r.model,
		System:      system,
		User:        fmt.Sprintf("Analyze this %s data:\n\n%s", target, payload),
		Temperature: 0,
		MaxTokens:   500,
	}, &v)
	if err != nil {
		r.logger.Warn("review call failed", zap.String("post_id", req.Post.ID), zap.Error(err))
		return errorResult(err)
	}

	result := moderation.ReviewResult{
		Violation:   v.Violation,
		Explanation: v.Explanation,
	}
	if v.RuleID != nil {
		result.RuleID = *v.RuleID
	}
	if result.Explanation == "" {
		result.Explanation = "Analysis completed"
	}

	if result.Violation && result.RuleID != "" {
		conf := r.scoreConfidence(ctx, req, result.RuleID)
		result.Confidence = &conf
		result.ConfidenceLvl = moderation.LevelFor(conf)
	}
	return result
}

// scoreConfidence runs the binary classifier for the violated rule and
// falls back to the default when the rule text or score is unavailable.
func (r *AgentReviewer) scoreConfidence(ctx context.Context, req Request, ruleID string) float64 {
	if r.scorer == nil {
		return defaultConfidence
	}

	target := req.Post.Title + "\n\n" + req.Post.Body
	if req.ReviewTarget == "comment" {
		target = req.TargetComment
	}

	ruleText := ruleTextFor(req, ruleID)
	if ruleText == "" || target == "" {
		return defaultConfidence
	}

	score, err := r.scorer.Score(ctx, ruleText, target)
	if err != nil {
		r.logger.Warn("confidence scoring failed", zap.String("rule_id", ruleID), zap.Error(err))
		return defaultConfidence
	}
	return score.Confidence
}

func ruleTextFor(req Request, ruleID string) string {
	for _, rule := range req.Rules {
		if rule.ID == ruleID {
			return rule.Text()
		}
	}
	for _, override := range moderation.WrapOverrides(req.OverrideRules) {
		if override.ID == ruleID {
			return override.RuleContent
		}
	}
	return ""
}

func errorResult(err error) moderation.ReviewResult {
	return moderation.ReviewResult{
		Violation:   false,
		Explanation: fmt.Sprintf("Error: %v", err),
		Err:         true,
	}
}
