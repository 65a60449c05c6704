package conversation

import (
	"time"

	"modkeeper/internal/moderation"
)

// Turn records one processed user message. History is append-only.
type Turn struct {
	Timestamp    time.Time
	UserMessage  string
	Intent       Intent
	AgentReply   string
	ActionsTaken []string
}

// State is the mutable per-session conversation record. It has no
// internal locking: it must only be driven from the interactive thread.
type State struct {
	History             []Turn
	CurrentIntent       *Intent
	SelectedPostID      string
	SelectedRuleID      string
	SelectedTopic       string
	SelectedPostDetails *moderation.Post
	LastActivity        time.Time
}

// NewState creates an empty session state.
func NewState() *State {
	return &State{LastActivity: time.Now()}
}

// AddTurn appends a turn to the history and refreshes activity.
func (s *State) AddTurn(userMessage string, intent Intent, reply string, actions []string) {
	s.History = append(s.History, Turn{
		Timestamp:    time.Now(),
		UserMessage:  userMessage,
		Intent:       intent,
		AgentReply:   reply,
		ActionsTaken: actions,
	})
	s.CurrentIntent = &intent
	s.LastActivity = time.Now()
}

// RecentContext returns the last n turns.
func (s *State) RecentContext(n int) []Turn {
	if n <= 0 || n >= len(s.History) {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// SelectPost records a post selection and snapshots its details. A copy
// is stored so store mutations do not alias conversation state.
func (s *State) SelectPost(id string, details *moderation.Post) {
	s.SelectedPostID = id
	if details == nil {
		s.SelectedPostDetails = nil
		return
	}
	snapshot := *details
	snapshot.OverrideRules = append([]string(nil), details.OverrideRules...)
	s.SelectedPostDetails = &snapshot
}

// ClearPost drops the selection and its snapshot.
func (s *State) ClearPost() {
	s.SelectedPostID = ""
	s.SelectedPostDetails = nil
}

// AddOverrideRule appends an override rule to the selected post's list,
// deduplicated by exact string match. Returns false when nothing changed.
func (s *State) AddOverrideRule(rule string) bool {
	if s.SelectedPostDetails == nil || rule == "" {
		return false
	}
	for _, existing := range s.SelectedPostDetails.OverrideRules {
		if existing == rule {
			return false
		}
	}
	s.SelectedPostDetails.OverrideRules = append(s.SelectedPostDetails.OverrideRules, rule)
	return true
}

// OverrideRules returns the selected post's accumulated override rules.
func (s *State) OverrideRules() []string {
	if s.SelectedPostDetails == nil {
		return nil
	}
	return s.SelectedPostDetails.OverrideRules
}

// IsStale reports whether the session has been idle past the timeout.
func (s *State) IsStale(timeout time.Duration) bool {
	return time.Since(s.LastActivity) > timeout
}
