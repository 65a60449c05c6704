// Package store owns the authoritative moderation state: the mutually
// exclusive flagged (todo) and approved post maps, the active selection,
// and the audit log of executed tool calls. Every mutating and reading
// operation is serialized behind one mutex; it is the sole
// synchronization point between the interactive thread and the
// background sampler.
package store

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"modkeeper/internal/bus"
	"modkeeper/internal/moderation"
	"modkeeper/internal/review"
)

// SelectedContext is the snapshot taken when a post is selected.
type SelectedContext struct {
	Post   moderation.Post
	Status string // "flagged" or "approved"
}

// Summary is the read-only view exposed to the view layer.
type Summary struct {
	ApprovedCount  int
	TodoCount      int
	SelectedPostID string
	ApprovedPosts  []moderation.Post
	TodoPosts      []moderation.Post
	ToolCallCount  int
}

// Outcome reports the result of a single-post mutation.
type Outcome struct {
	Message      string
	Approved     []moderation.Post
	Flagged      []moderation.Post
	ActionsTaken []string
	Action       string
	PostID       string
	ToolResult   *moderation.ToolResult
}

// Store is the moderation meta-agent.
type Store struct {
	mu          sync.Mutex
	todo        map[string]moderation.Post
	approved    map[string]moderation.Post
	selectedID  string
	selectedCtx *SelectedContext
	toolLog     []*moderation.ToolCall

	bus      *bus.Bus
	reviewer review.Reviewer
	logger   *zap.Logger
}

// New creates a Store wired to the given event bus and review agent. The
// store subscribes itself to background batch results so sampler output
// merges into the maps even when published elsewhere.
func New(b *bus.Bus, reviewer review.Reviewer, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		todo:     make(map[string]moderation.Post),
		approved: make(map[string]moderation.Post),
		bus:      b,
		reviewer: reviewer,
		logger:   logger,
	}
	if b != nil {
		b.Subscribe(bus.EventBackgroundPostsLoaded, s.handleBackgroundPosts)
	}
	return s
}

// Select toggles the selection: selecting the already-selected id
// deselects it (persisting any accumulated override rules back into
// whichever map holds the post), selecting a different id replaces the
// selection and snapshots that post.
func (s *Store) Select(id string) {
	s.mu.Lock()

	if id == s.selectedID {
		s.persistSelectedOverridesLocked()
		s.selectedID = ""
		s.selectedCtx = nil
		s.mu.Unlock()
		if s.bus != nil {
			s.bus.Publish(bus.EventPostDeselected, bus.PostDeselected{PostID: id})
		}
		return
	}

	s.selectedID = id
	s.selectedCtx = nil
	if post, status, ok := s.lookupLocked(id); ok {
		s.selectedCtx = &SelectedContext{Post: post, Status: status}
	}
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(bus.EventPostSelected, bus.PostSelected{PostID: id})
	}
}

// SelectedPost returns a copy of the currently selected post, or nil.
func (s *Store) SelectedPost() *moderation.Post {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selectedID == "" {
		return nil
	}
	if post, _, ok := s.lookupLocked(s.selectedID); ok {
		return &post
	}
	return nil
}

// SelectedContext returns a copy of the selection snapshot, or nil.
func (s *Store) SelectedContext() *SelectedContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selectedCtx == nil {
		return nil
	}
	cp := *s.selectedCtx
	cp.Post.OverrideRules = append([]string(nil), s.selectedCtx.Post.OverrideRules...)
	return &cp
}

// AddOverrideToSelected appends an override rule to the selection
// snapshot, deduplicated by exact string. Returns false when no post is
// selected or the rule is already present.
func (s *Store) AddOverrideToSelected(rule string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selectedCtx == nil || rule == "" {
		return false
	}
	for _, existing := range s.selectedCtx.Post.OverrideRules {
		if existing == rule {
			return false
		}
	}
	s.selectedCtx.Post.OverrideRules = append(s.selectedCtx.Post.OverrideRules, rule)
	return true
}

// Approve executes an approve_post tool call and, when the id is
// currently flagged, moves it to the approved map and clears the
// selection. The tool call reports success either way: it is a
// notification of intent, not a verified state change.
func (s *Store) Approve(id, reason string) *Outcome {
	result := s.executeTool(moderation.ToolApprovePost, map[string]any{
		"post_id": id,
		"reason":  reason,
	})

	s.mu.Lock()
	if post, ok := s.todo[id]; ok {
		delete(s.todo, id)
		s.approved[id] = post
		s.selectedID = ""
		s.selectedCtx = nil
	}
	s.mu.Unlock()

	return &Outcome{
		Message:    fmt.Sprintf("Post %s approved successfully", id),
		ToolResult: result,
		Action:     "approve",
		PostID:     id,
	}
}

// Reject executes a reject_post tool call and removes the id from the
// flagged map when present, clearing the selection.
func (s *Store) Reject(id, reason string) *Outcome {
	result := s.executeTool(moderation.ToolRejectPost, map[string]any{
		"post_id": id,
		"reason":  reason,
	})

	s.mu.Lock()
	if _, ok := s.todo[id]; ok {
		delete(s.todo, id)
		s.selectedID = ""
		s.selectedCtx = nil
	}
	s.mu.Unlock()

	return &Outcome{
		Message:    fmt.Sprintf("Post %s rejected successfully", id),
		ToolResult: result,
		Action:     "reject",
		PostID:     id,
	}
}

// Flag executes a flag_for_review tool call. Flagging is purely an audit
// action; the post stays where it is.
func (s *Store) Flag(id, reason string) *Outcome {
	result := s.executeTool(moderation.ToolFlagForReview, map[string]any{
		"post_id": id,
		"reason":  reason,
	})
	return &Outcome{
		Message:    fmt.Sprintf("Post %s flagged for review", id),
		ToolResult: result,
		Action:     "flag",
		PostID:     id,
	}
}

// executeTool runs and audit-logs one tool call.
func (s *Store) executeTool(name string, params map[string]any) *moderation.ToolResult {
	call := moderation.NewToolCall(name, params)
	result := call.Execute()

	s.mu.Lock()
	s.toolLog = append(s.toolLog, call)
	s.mu.Unlock()

	s.logger.Info("tool executed",
		zap.String("tool", name),
		zap.Any("params", params))
	return result
}

// Summary returns counts and copies of both maps.
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		ApprovedCount:  len(s.approved),
		TodoCount:      len(s.todo),
		SelectedPostID: s.selectedID,
		ToolCallCount:  len(s.toolLog),
	}
	for _, p := range s.approved {
		sum.ApprovedPosts = append(sum.ApprovedPosts, p)
	}
	for _, p := range s.todo {
		sum.TodoPosts = append(sum.TodoPosts, p)
	}
	return sum
}

// lookupLocked finds a post in either map. Caller holds the mutex.
func (s *Store) lookupLocked(id string) (moderation.Post, string, bool) {
	if post, ok := s.todo[id]; ok {
		return post, "flagged", true
	}
	if post, ok := s.approved[id]; ok {
		return post, "approved", true
	}
	return moderation.Post{}, "", false
}

// persistSelectedOverridesLocked writes the selection snapshot's override
// rules back into whichever map currently holds the post id. Caller
// holds the mutex.
func (s *Store) persistSelectedOverridesLocked() {
	if s.selectedCtx == nil || len(s.selectedCtx.Post.OverrideRules) == 0 {
		return
	}
	id := s.selectedCtx.Post.ID
	rules := append([]string(nil), s.selectedCtx.Post.OverrideRules...)
	if post, ok := s.todo[id]; ok {
		post.OverrideRules = rules
		s.todo[id] = post
	} else if post, ok := s.approved[id]; ok {
		post.OverrideRules = rules
		s.approved[id] = post
	}
}

// handleBackgroundPosts merges a sampler batch into the maps. Merging is
// idempotent with AutoReview's own merge.
func (s *Store) handleBackgroundPosts(payload any) {
	batch, ok := payload.(bus.BackgroundPostsLoaded)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, post := range batch.Approved {
		delete(s.todo, post.ID)
		s.approved[post.ID] = post
	}
	for _, post := range batch.Flagged {
		delete(s.approved, post.ID)
		s.todo[post.ID] = post
	}
}

// makePostInfoLocked builds the stored record for a reviewed post:
// bounded title/body, the verdict fields, and any override rules already
// accumulated for that id. Caller holds the mutex.
func (s *Store) makePostInfoLocked(post moderation.Post, result moderation.ReviewResult) moderation.Post {
	info := moderation.Post{
		ID:          post.ID,
		Title:       moderation.Truncate(post.Title, moderation.MaxTitleLen),
		Body:        moderation.Truncate(post.Body, moderation.MaxBodyLen),
		RuleID:      result.RuleID,
		Violation:   result.Violation,
		Explanation: result.Explanation,
	}
	if result.Confidence != nil {
		conf := *result.Confidence
		info.Confidence = &conf
		info.ConfidenceLvl = result.ConfidenceLvl
	}

	if existing, _, ok := s.lookupLocked(post.ID); ok && len(existing.OverrideRules) > 0 {
		info.OverrideRules = existing.OverrideRules
	} else if len(post.OverrideRules) > 0 {
		info.OverrideRules = post.OverrideRules
	}
	return info
}
