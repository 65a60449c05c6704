package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modkeeper/internal/bus"
	"modkeeper/internal/corpus"
	"modkeeper/internal/moderation"
	"modkeeper/internal/review"
)

type stubReviewer struct {
	results map[string]moderation.ReviewResult
	calls   []review.Request
}

func (r *stubReviewer) Review(_ context.Context, req review.Request) moderation.ReviewResult {
	r.calls = append(r.calls, req)
	if result, ok := r.results[req.Post.ID]; ok {
		return result
	}
	return moderation.ReviewResult{Explanation: "No issues found"}
}

type stubProvider struct {
	snapshot *corpus.Snapshot
	err      error
}

func (p *stubProvider) Load() (*corpus.Snapshot, error) {
	return p.snapshot, p.err
}

func violationResult(ruleID string) moderation.ReviewResult {
	conf := 0.91
	return moderation.ReviewResult{
		Violation:     true,
		RuleID:        ruleID,
		Explanation:   "Contains prohibited content",
		Confidence:    &conf,
		ConfidenceLvl: moderation.LevelHigh,
	}
}

func seededStore(t *testing.T, reviewer review.Reviewer) (*Store, *bus.Bus) {
	t.Helper()
	b := bus.New(nil)
	s := New(b, reviewer, nil)
	b.Publish(bus.EventBackgroundPostsLoaded, bus.BackgroundPostsLoaded{
		Approved: []moderation.Post{{ID: "ok1", Title: "fine post"}},
		Flagged: []moderation.Post{{
			ID:          "bad1",
			Title:       "spam post",
			RuleID:      "rule_2",
			Violation:   true,
			Explanation: "Promotional content",
		}},
	})
	return s, b
}

func TestSelectToggleAndReplace(t *testing.T) {
	s, _ := seededStore(t, &stubReviewer{})

	s.Select("bad1")
	sel := s.SelectedPost()
	require.NotNil(t, sel)
	assert.Equal(t, "bad1", sel.ID)

	s.Select("ok1")
	sel = s.SelectedPost()
	require.NotNil(t, sel)
	assert.Equal(t, "ok1", sel.ID)

	s.Select("ok1")
	assert.Nil(t, s.SelectedPost())
}

func TestSelectPublishesEvents(t *testing.T) {
	s, b := seededStore(t, &stubReviewer{})

	var selected, deselected []string
	b.Subscribe(bus.EventPostSelected, func(payload any) {
		selected = append(selected, payload.(bus.PostSelected).PostID)
	})
	b.Subscribe(bus.EventPostDeselected, func(payload any) {
		deselected = append(deselected, payload.(bus.PostDeselected).PostID)
	})

	s.Select("bad1")
	s.Select("bad1")

	assert.Equal(t, []string{"bad1"}, selected)
	assert.Equal(t, []string{"bad1"}, deselected)
}

func TestDeselectPersistsOverrideRules(t *testing.T) {
	s, _ := seededStore(t, &stubReviewer{})

	s.Select("bad1")
	require.True(t, s.AddOverrideToSelected("ignore rule_2 for weekly threads"))
	assert.False(t, s.AddOverrideToSelected("ignore rule_2 for weekly threads"))

	s.Select("bad1") // deselect

	s.Select("bad1")
	sel := s.SelectedContext()
	require.NotNil(t, sel)
	assert.Equal(t, []string{"ignore rule_2 for weekly threads"}, sel.Post.OverrideRules)
}

func TestApproveMovesFlaggedPost(t *testing.T) {
	s, _ := seededStore(t, &stubReviewer{})
	s.Select("bad1")

	outcome := s.Approve("bad1", "moderator approved")
	require.NotNil(t, outcome.ToolResult)
	assert.True(t, outcome.ToolResult.Success)

	sum := s.Summary()
	assert.Equal(t, 2, sum.ApprovedCount)
	assert.Equal(t, 0, sum.TodoCount)
	assert.Empty(t, sum.SelectedPostID)
	assert.Equal(t, 1, sum.ToolCallCount)
}

func TestApproveUnknownPostSkipsStateChange(t *testing.T) {
	s, _ := seededStore(t, &stubReviewer{})
	s.Select("bad1")

	outcome := s.Approve("missing", "typo")
	assert.True(t, outcome.ToolResult.Success)

	sum := s.Summary()
	assert.Equal(t, 1, sum.TodoCount)
	assert.Equal(t, "bad1", sum.SelectedPostID)
}

func TestRejectRemovesFlaggedPost(t *testing.T) {
	s, _ := seededStore(t, &stubReviewer{})

	s.Reject("bad1", "clear violation")

	sum := s.Summary()
	assert.Equal(t, 0, sum.TodoCount)
	assert.Equal(t, 1, sum.ApprovedCount)
	assert.Equal(t, 1, sum.ToolCallCount)
}

func TestPostIDNeverInBothMaps(t *testing.T) {
	reviewer := &stubReviewer{results: map[string]moderation.ReviewResult{
		"bad1": violationResult("rule_1"),
	}}
	s, _ := seededStore(t, reviewer)

	// Re-flag an approved id through a background batch.
	s.handleBackgroundPosts(bus.BackgroundPostsLoaded{
		Flagged: []moderation.Post{{ID: "ok1", Violation: true, RuleID: "rule_3"}},
	})

	sum := s.Summary()
	assert.Equal(t, 0, sum.ApprovedCount)
	assert.Equal(t, 2, sum.TodoCount)
}

func TestReReviewClearedViolationAutoApproves(t *testing.T) {
	reviewer := &stubReviewer{results: map[string]moderation.ReviewResult{
		"bad1": {Violation: false, Explanation: "Override rule applies"},
	}}
	s, _ := seededStore(t, reviewer)
	s.Select("bad1")

	provider := &stubProvider{snapshot: &corpus.Snapshot{Subreddit: "gardening"}}
	overrides := []string{"ignore rule_2 for self promotion saturday"}
	outcome := s.ReReview(context.Background(), provider, overrides, "this is allowed on saturdays")

	require.Len(t, outcome.Approved, 1)
	assert.Equal(t, []string{moderation.ToolApprovePost}, outcome.ActionsTaken)
	require.NotNil(t, outcome.ToolResult)
	assert.True(t, outcome.ToolResult.Success)

	sum := s.Summary()
	assert.Equal(t, 0, sum.TodoCount)
	assert.Equal(t, 2, sum.ApprovedCount)
	assert.Empty(t, sum.SelectedPostID)

	require.Len(t, reviewer.calls, 1)
	assert.Equal(t, overrides, reviewer.calls[0].OverrideRules)
}

func TestReReviewConfirmedViolationStaysFlagged(t *testing.T) {
	reviewer := &stubReviewer{results: map[string]moderation.ReviewResult{
		"bad1": violationResult("rule_2"),
	}}
	s, _ := seededStore(t, reviewer)
	s.Select("bad1")

	provider := &stubProvider{snapshot: &corpus.Snapshot{Subreddit: "gardening"}}
	outcome := s.ReReview(context.Background(), provider, nil, "")

	require.Len(t, outcome.Flagged, 1)
	assert.Empty(t, outcome.ActionsTaken)
	assert.Nil(t, outcome.ToolResult)

	sum := s.Summary()
	assert.Equal(t, 1, sum.TodoCount)
	assert.Equal(t, "bad1", sum.SelectedPostID)
	assert.Equal(t, 0, sum.ToolCallCount)
}

func TestReReviewWithoutSelection(t *testing.T) {
	s, _ := seededStore(t, &stubReviewer{})

	outcome := s.ReReview(context.Background(), &stubProvider{}, nil, "")
	assert.Contains(t, outcome.Message, "No post is currently selected")
}

func TestReReviewPublishesContextEvent(t *testing.T) {
	reviewer := &stubReviewer{results: map[string]moderation.ReviewResult{
		"bad1": {Violation: false, Explanation: "cleared"},
	}}
	s, b := seededStore(t, reviewer)
	s.Select("bad1")

	var events []bus.PostReReviewed
	b.Subscribe(bus.EventPostReReviewedCtx, func(payload any) {
		events = append(events, payload.(bus.PostReReviewed))
	})

	s.ReReview(context.Background(), &stubProvider{snapshot: &corpus.Snapshot{}}, nil, "please allow this")

	require.Len(t, events, 1)
	assert.Equal(t, "bad1", events[0].PostID)
	assert.Equal(t, "please allow this", events[0].Instruction)
}

func TestAutoReviewSplitsVerdicts(t *testing.T) {
	reviewer := &stubReviewer{results: map[string]moderation.ReviewResult{
		"p2": violationResult("rule_1"),
	}}
	b := bus.New(nil)
	s := New(b, reviewer, nil)

	provider := &stubProvider{snapshot: &corpus.Snapshot{
		Subreddit: "gardening",
		Rules:     []moderation.Rule{{ID: "rule_1", ShortName: "No spam"}},
		Posts: []moderation.Post{
			{ID: "p1", Title: "tomato advice"},
			{ID: "p2", Title: "buy my fertilizer"},
		},
	}}

	approved, flagged, err := s.AutoReview(context.Background(), provider, nil)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	require.Len(t, flagged, 1)
	assert.Equal(t, "p1", approved[0].ID)
	assert.Equal(t, "p2", flagged[0].ID)
	assert.Equal(t, "rule_1", flagged[0].RuleID)
	require.NotNil(t, flagged[0].Confidence)
	assert.Equal(t, moderation.LevelHigh, flagged[0].ConfidenceLvl)

	sum := s.Summary()
	assert.Equal(t, 1, sum.ApprovedCount)
	assert.Equal(t, 1, sum.TodoCount)
}

func TestAutoReviewLoadError(t *testing.T) {
	s := New(bus.New(nil), &stubReviewer{}, nil)

	_, _, err := s.AutoReview(context.Background(), &stubProvider{err: assert.AnError}, nil)
	require.Error(t, err)
}

func TestAutoReviewPreservesExistingOverrides(t *testing.T) {
	reviewer := &stubReviewer{results: map[string]moderation.ReviewResult{
		"bad1": violationResult("rule_2"),
	}}
	s, _ := seededStore(t, reviewer)
	s.Select("bad1")
	s.AddOverrideToSelected("ignore rule_2 for megathreads")
	s.Select("bad1") // deselect, persisting the override

	provider := &stubProvider{snapshot: &corpus.Snapshot{
		Subreddit: "gardening",
		Posts:     []moderation.Post{{ID: "bad1", Title: "spam post"}},
	}}
	_, flagged, err := s.AutoReview(context.Background(), provider, nil)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, []string{"ignore rule_2 for megathreads"}, flagged[0].OverrideRules)
}
