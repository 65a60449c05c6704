package override

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modkeeper/internal/bus"
	"modkeeper/internal/moderation"
	"modkeeper/internal/testing/mocks"
)

var testRules = []moderation.Rule{
	{ID: "rule_1", ShortName: "Be civil"},
	{ID: "rule_2", ShortName: "No self promotion"},
}

func TestExtractReturnsCanonicalRule(t *testing.T) {
	client := (&mocks.MockClient{}).WithTextResponse(
		`{"override_rule": "ignore rule_2 for saturday threads"}`)
	e := NewExtractor(client, "test-model", nil, nil)

	post := &moderation.Post{ID: "p1", Title: "my product launch", RuleID: "rule_2"}
	rule, err := e.Extract(context.Background(), "ignore rule_2 for saturday threads", post, testRules, nil)

	require.NoError(t, err)
	assert.Equal(t, "ignore rule_2 for saturday threads", rule)
}

func TestExtractNullForNonExplicitFeedback(t *testing.T) {
	client := (&mocks.MockClient{}).WithTextResponse(`{"override_rule": null}`)
	e := NewExtractor(client, "test-model", nil, nil)

	rule, err := e.Extract(context.Background(), "hmm, this one seems borderline", nil, testRules, nil)

	require.NoError(t, err)
	assert.Empty(t, rule)
}

func TestExtractEmptyInstructionSkipsClassifier(t *testing.T) {
	client := &mocks.MockClient{}
	e := NewExtractor(client, "test-model", nil, nil)

	rule, err := e.Extract(context.Background(), "   ", nil, testRules, nil)

	require.NoError(t, err)
	assert.Empty(t, rule)
	assert.Empty(t, client.Calls)
}

func TestExtractDiscardsDuplicateTargetingSameRule(t *testing.T) {
	client := (&mocks.MockClient{}).WithTextResponse(
		`{"override_rule": "ignore rule_2 for product announcements"}`)
	e := NewExtractor(client, "test-model", nil, nil)

	existing := []string{"ignore rule_2 for saturday threads"}
	rule, err := e.Extract(context.Background(), "also allow product announcements", nil, testRules, existing)

	require.NoError(t, err)
	assert.Empty(t, rule)
}

func TestExtractAllowsOverrideForDifferentRule(t *testing.T) {
	client := (&mocks.MockClient{}).WithTextResponse(
		`{"override_rule": "ignore rule_1 for heated debates"}`)
	e := NewExtractor(client, "test-model", nil, nil)

	existing := []string{"ignore rule_2 for saturday threads"}
	rule, err := e.Extract(context.Background(), "ignore rule_1 for heated debates", nil, testRules, existing)

	require.NoError(t, err)
	assert.Equal(t, "ignore rule_1 for heated debates", rule)
}

func TestExtractPublishesEvent(t *testing.T) {
	client := (&mocks.MockClient{}).WithTextResponse(
		`{"override_rule": "ignore rule_2 for saturday threads"}`)
	b := bus.New(nil)
	e := NewExtractor(client, "test-model", b, nil)

	var events []bus.RuleExtracted
	b.Subscribe(bus.EventRuleExtracted, func(payload any) {
		events = append(events, payload.(bus.RuleExtracted))
	})

	post := &moderation.Post{ID: "p1"}
	_, err := e.Extract(context.Background(), "ignore rule_2 for saturday threads", post, testRules, nil)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "ignore rule_2 for saturday threads", events[0].Rule)
	assert.Equal(t, "p1", events[0].PostID)
}

func TestExtractClassifierFailure(t *testing.T) {
	e := NewExtractor(&mocks.MockClient{}, "test-model", nil, nil)

	_, err := e.Extract(context.Background(), "ignore rule_2 for saturdays", nil, testRules, nil)
	require.Error(t, err)
}

func TestTargetsExistingRule(t *testing.T) {
	existing := []string{"ignore rule_2 for saturday threads"}

	assert.True(t, targetsExistingRule("ignore rule_2 for anything else", existing))
	assert.False(t, targetsExistingRule("ignore rule_3 for anything else", existing))
	assert.False(t, targetsExistingRule("allow all weekend posts", existing))
	assert.False(t, targetsExistingRule("ignore rule_2 for x", nil))
}
