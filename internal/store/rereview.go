package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"modkeeper/internal/bus"
	"modkeeper/internal/corpus"
	"modkeeper/internal/moderation"
	"modkeeper/internal/review"
)

// ReReview re-submits the selected post to the review agent with the
// given override rules. The outcome is asymmetric: a cleared violation
// auto-approves the post (with a tool call) and clears the selection,
// while a confirmed violation keeps the post flagged for the moderator
// to act on explicitly. A re-review never auto-rejects.
//
// instruction is the moderator text that triggered the re-review; when
// non-empty the richer with-context event is published.
func (s *Store) ReReview(ctx context.Context, provider corpus.Provider, overrides []string, instruction string) *Outcome {
	s.mu.Lock()
	selCtx := s.selectedCtx
	selID := s.selectedID
	var post moderation.Post
	if selCtx != nil {
		post = selCtx.Post
		post.OverrideRules = append([]string(nil), selCtx.Post.OverrideRules...)
	}
	s.mu.Unlock()

	if selID == "" {
		return &Outcome{Message: "No post is currently selected for re-review."}
	}

	snapshot, err := provider.Load()
	if err != nil {
		s.logger.Warn("re-review load failed", zap.String("post_id", selID), zap.Error(err))
		return &Outcome{Message: fmt.Sprintf("Could not load data for re-review: %v", err)}
	}

	if selCtx == nil {
		found := false
		for _, candidate := range snapshot.Posts {
			if candidate.ID == selID {
				post = candidate
				found = true
				break
			}
		}
		if !found {
			return &Outcome{Message: fmt.Sprintf("Post %s not found in loaded data.", selID)}
		}
	}

	result := s.reviewer.Review(ctx, review.Request{
		Post:          post,
		Subreddit:     snapshot.Subreddit,
		Rules:         snapshot.Rules,
		OverrideRules: overrides,
		ReviewTarget:  "post",
	})

	outcome := s.mergeReReview(post, result, overrides)

	if s.bus != nil {
		event := bus.EventPostReReviewed
		if instruction != "" {
			event = bus.EventPostReReviewedCtx
		}
		s.bus.Publish(event, bus.PostReReviewed{
			PostID:        post.ID,
			Result:        result,
			OverrideRules: overrides,
			Instruction:   instruction,
		})
	}
	return outcome
}

// mergeReReview applies one re-review verdict to the maps under the lock.
func (s *Store) mergeReReview(post moderation.Post, result moderation.ReviewResult, overrides []string) *Outcome {
	s.mu.Lock()

	info := s.makePostInfoLocked(post, result)
	if len(overrides) > 0 {
		info.OverrideRules = append([]string(nil), overrides...)
	}

	if result.Violation {
		delete(s.approved, post.ID)
		s.todo[post.ID] = info
		if s.selectedCtx != nil && s.selectedCtx.Post.ID == post.ID {
			s.selectedCtx.Post = info
			s.selectedCtx.Status = "flagged"
		}
		s.mu.Unlock()

		return &Outcome{
			Message: fmt.Sprintf("Re-reviewed post %s: Still flagged - %s", post.ID, result.Explanation),
			Flagged: []moderation.Post{info},
			PostID:  post.ID,
		}
	}

	delete(s.todo, post.ID)
	s.approved[post.ID] = info
	s.selectedID = ""
	s.selectedCtx = nil
	s.mu.Unlock()

	reason := fmt.Sprintf("Re-reviewed with override rules: %s", result.Explanation)
	toolResult := s.executeTool(moderation.ToolApprovePost, map[string]any{
		"post_id": post.ID,
		"reason":  reason,
	})

	return &Outcome{
		Message:      fmt.Sprintf("Post %s re-reviewed and approved: %s", post.ID, result.Explanation),
		Approved:     []moderation.Post{info},
		ActionsTaken: []string{moderation.ToolApprovePost},
		Action:       "approve",
		PostID:       post.ID,
		ToolResult:   toolResult,
	}
}

// AutoReview loads a batch from the provider, reviews every post, and
// merges the verdicts into the maps in one critical section. Reviews run
// outside the lock so a slow classifier never blocks interactive reads.
// Per-post failures are folded into flagged results by the reviewer, so
// the batch always completes.
func (s *Store) AutoReview(ctx context.Context, provider corpus.Provider, overrides []string) (approved, flagged []moderation.Post, err error) {
	snapshot, err := provider.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("auto review: %w", err)
	}

	type reviewed struct {
		post   moderation.Post
		result moderation.ReviewResult
	}
	results := make([]reviewed, 0, len(snapshot.Posts))
	for _, post := range snapshot.Posts {
		result := s.reviewer.Review(ctx, review.Request{
			Post:          post,
			Subreddit:     snapshot.Subreddit,
			Rules:         snapshot.Rules,
			OverrideRules: overrides,
			ReviewTarget:  "post",
		})
		if result.Err {
			s.logger.Warn("auto review post failed",
				zap.String("post_id", post.ID),
				zap.String("detail", result.Explanation))
		}
		results = append(results, reviewed{post: post, result: result})
	}

	s.mu.Lock()
	for _, r := range results {
		info := s.makePostInfoLocked(r.post, r.result)
		if r.result.Violation {
			delete(s.approved, info.ID)
			s.todo[info.ID] = info
			flagged = append(flagged, info)
		} else {
			delete(s.todo, info.ID)
			s.approved[info.ID] = info
			approved = append(approved, info)
		}
	}
	s.mu.Unlock()

	s.logger.Info("auto review merged",
		zap.String("topic", snapshot.Subreddit),
		zap.Int("approved", len(approved)),
		zap.Int("flagged", len(flagged)))
	return approved, flagged, nil
}

// DescribePost renders one stored post for the conversational view.
func DescribePost(post moderation.Post, status string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Post %s (%s)\n", post.ID, status)
	fmt.Fprintf(&b, "Title: %s\n", post.Title)
	if post.Violation {
		fmt.Fprintf(&b, "Violation: %s\n", post.RuleID)
	}
	if post.Explanation != "" {
		fmt.Fprintf(&b, "Explanation: %s\n", post.Explanation)
	}
	if post.Confidence != nil {
		fmt.Fprintf(&b, "Confidence: %.4f (%s)\n", *post.Confidence, post.ConfidenceLvl)
	}
	if len(post.OverrideRules) > 0 {
		fmt.Fprintf(&b, "Override rules: %s\n", strings.Join(post.OverrideRules, "; "))
	}
	return b.String()
}
