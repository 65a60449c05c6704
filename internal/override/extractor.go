// Package override extracts moderator-authored override rules from
// free-text instructions. Only very explicit override phrasing produces a
// rule; vague leniency requests, questions, and plain approvals yield
// none.
package override

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"modkeeper/internal/bus"
	"modkeeper/internal/llm"
	"modkeeper/internal/moderation"
)

const systemPrompt = `You are an Override Rule Extraction Agent for a community moderation system.
Your task is to analyze user instructions and extract ONE EXPLICIT override rule.

CRITICAL: Only extract an override rule when the user uses VERY EXPLICIT override language.

EXPLICIT override phrases (extract these):
- 'ignore rule X'
- 'ignore the rule about X'
- 'override rule X'
- 'make an exception to rule X'
- 'don't apply rule X to this type of content'
- 'suspend rule X for educational posts'

DO NOT extract override rules for:
- General feedback: 'this looks fine', 'I think this is okay', 'seems good'
- Questions: 'why was this flagged?', 'what rule does this violate?'
- Vague requests: 'be more lenient', 'this seems harsh'
- Approval statements: 'approve this', 'this should be allowed'

RULE FORMAT: Create BRIEF, CONCISE override rules.
Format: 'ignore rule_X for [specific condition]' where X is the rule ID.
Keep descriptions under 10 words. Do NOT include full rule descriptions.

DUPLICATE PREVENTION: Check existing override rules carefully.
If an override rule already exists for the SAME rule ID (e.g., rule_1), return null.
Only create new override rules for rule IDs that don't have existing overrides.

RULE IDENTIFICATION:
CAREFULLY match topical keywords in the instruction to the rule descriptions
provided below ('insults' or 'personal attacks' mean the personal-attacks rule,
not the civility rule). Never guess by position.
Reference rules by their ID (rule_1, rule_2, etc.).

If no EXPLICIT override language is found, return null.
If an override already exists for that rule ID, return null.

Respond with JSON: {"override_rule": "ignore rule_X for [condition]" or null}`

var ruleIDPattern = regexp.MustCompile(`rule_\d+`)

// Extractor turns an instruction plus post/rule context into at most one
// canonical override rule.
type Extractor struct {
	client llm.Client
	model  string
	bus    *bus.Bus
	logger *zap.Logger
}

// NewExtractor creates an Extractor. The bus may be nil; extraction then
// skips event publication.
func NewExtractor(client llm.Client, model string, b *bus.Bus, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{client: client, model: model, bus: b, logger: logger}
}

type extraction struct {
	OverrideRule *string `json:"override_rule"`
}

// Extract returns the canonical override string, or "" when the
// instruction carries no explicit override. Deduplication is semantic:
// an extracted rule targeting a rule id that an existing override already
// targets is discarded even when the wording differs.
func (e *Extractor) Extract(ctx context.Context, instruction string, postCtx *moderation.Post, rules []moderation.Rule, existing []string) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", nil
	}

	var out extraction
	err := llm.CompleteJSON(ctx, e.client, llm.Request{
		Model:       e.model,
		System:      systemPrompt,
		User:        buildContext(instruction, postCtx, rules, existing),
		Temperature: 0,
		MaxTokens:   400,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.OverrideRule == nil || *out.OverrideRule == "" {
		return "", nil
	}

	rule := strings.TrimSpace(*out.OverrideRule)
	if targetsExistingRule(rule, existing) {
		e.logger.Debug("discarding duplicate override", zap.String("rule", rule))
		return "", nil
	}

	if e.bus != nil {
		postID := ""
		if postCtx != nil {
			postID = postCtx.ID
		}
		e.bus.Publish(bus.EventRuleExtracted, bus.RuleExtracted{
			Rule:        rule,
			Instruction: instruction,
			PostID:      postID,
		})
	}
	return rule, nil
}

// targetsExistingRule guards against the classifier missing its own
// duplicate-prevention instruction: if the extracted rule names a rule id
// any existing override already names, it is a duplicate.
func targetsExistingRule(rule string, existing []string) bool {
	target := ruleIDPattern.FindString(rule)
	if target == "" {
		return false
	}
	for _, prior := range existing {
		if ruleIDPattern.FindString(prior) == target {
			return true
		}
	}
	return false
}

func buildContext(instruction string, postCtx *moderation.Post, rules []moderation.Rule, existing []string) string {
	var b strings.Builder
	b.WriteString("Context:\n")

	if postCtx != nil {
		if postCtx.Title != "" {
			b.WriteString(fmt.Sprintf("Post: %s\n", moderation.Truncate(postCtx.Title, 100)))
		}
		if postCtx.RuleID != "" {
			b.WriteString(fmt.Sprintf("Current violation: Rule %s\n", postCtx.RuleID))
		}
	}

	if len(rules) > 0 {
		b.WriteString("\nAvailable rules:\n")
		for _, rule := range rules {
			b.WriteString(fmt.Sprintf("- %s: %s\n", rule.ID, rule.ShortName))
		}
	}

	if len(existing) > 0 {
		b.WriteString("\nExisting override rules (DO NOT CREATE DUPLICATES):\n")
		for _, rule := range existing {
			b.WriteString(fmt.Sprintf("- %s\n", rule))
		}
	}

	b.WriteString(fmt.Sprintf("\nUser instruction: %s", instruction))
	return b.String()
}
