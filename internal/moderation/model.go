// Package moderation defines the shared domain model for the moderation
// core: posts, community rules, review verdicts, and the tool calls that
// record moderation side effects.
package moderation

import "fmt"

const (
	// MaxTitleLen and MaxBodyLen bound how much post text is retained in
	// the store.
	MaxTitleLen = 150
	MaxBodyLen  = 1000
)

// Post is a stored post together with its most recent review verdict.
// A post id lives in exactly one of the store's two maps (flagged or
// approved) at any time.
type Post struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Body          string   `json:"body"`
	RuleID        string   `json:"rule_id,omitempty"`
	Violation     bool     `json:"violation"`
	Explanation   string   `json:"explanation"`
	Confidence    *float64 `json:"confidence,omitempty"`
	ConfidenceLvl Level    `json:"confidence_level,omitempty"`
	OverrideRules []string `json:"override_rules,omitempty"`
}

// Rule is one community rule. The id is synthetic (rule_N, 1-based,
// assigned by ingestion order) and rules are immutable once loaded.
type Rule struct {
	ID              string `json:"id"`
	Kind            string `json:"kind,omitempty"`
	Description     string `json:"description"`
	ShortName       string `json:"short_name"`
	ViolationReason string `json:"violation_reason,omitempty"`
	Priority        int    `json:"priority"`
}

// Text joins the rule's descriptive fields into the single string handed
// to the binary classifier.
func (r Rule) Text() string {
	parts := make([]string, 0, 3)
	if r.ShortName != "" {
		parts = append(parts, r.ShortName)
	}
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	if r.ViolationReason != "" {
		parts = append(parts, "Violation reason: "+r.ViolationReason)
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " - "
		}
		out += p
	}
	return out
}

// OverrideRule wraps a moderator-authored override string with the
// synthetic id it carries on the wire (override_rule_N, 1-based within one
// review request). Overrides outrank every base rule.
type OverrideRule struct {
	ID          string `json:"id"`
	RuleContent string `json:"rule_content"`
}

// WrapOverrides assigns synthetic ids to a list of override strings.
func WrapOverrides(rules []string) []OverrideRule {
	if len(rules) == 0 {
		return nil
	}
	wrapped := make([]OverrideRule, 0, len(rules))
	for i, r := range rules {
		wrapped = append(wrapped, OverrideRule{
			ID:          fmt.Sprintf("override_rule_%d", i+1),
			RuleContent: r,
		})
	}
	return wrapped
}

// ReviewResult is the verdict returned by the review agent for one post.
type ReviewResult struct {
	Violation     bool     `json:"violation"`
	RuleID        string   `json:"rule_id,omitempty"`
	Explanation   string   `json:"explanation"`
	Confidence    *float64 `json:"confidence,omitempty"`
	ConfidenceLvl Level    `json:"confidence_level,omitempty"`
	Err           bool     `json:"error,omitempty"`
}

// Level buckets a confidence value.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// LevelFor derives the categorical confidence level: high >=0.8,
// medium >=0.6, low otherwise.
func LevelFor(confidence float64) Level {
	switch {
	case confidence >= 0.8:
		return LevelHigh
	case confidence >= 0.6:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Truncate bounds a post's stored title and body to max characters,
// never splitting a multi-byte rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
