package moderation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tool names the store knows how to execute.
const (
	ToolApprovePost   = "approve_post"
	ToolRejectPost    = "reject_post"
	ToolFlagForReview = "flag_for_review"
)

// ToolResult records the outcome of one tool execution.
type ToolResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

// ToolCall is a one-shot, non-retryable unit of audit-logged side effect.
// Execution always reports success for known tools: the call is a
// notification of intent, not a verified state change.
type ToolCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	Result     *ToolResult    `json:"result,omitempty"`
	Executed   bool           `json:"executed"`
}

// NewToolCall builds an unexecuted tool call.
func NewToolCall(name string, params map[string]any) *ToolCall {
	return &ToolCall{
		ID:         uuid.NewString(),
		Name:       name,
		Parameters: params,
	}
}

// Execute runs the tool call and stores its result. Calling Execute a
// second time returns the recorded result unchanged.
func (tc *ToolCall) Execute() *ToolResult {
	if tc.Executed {
		return tc.Result
	}

	now := time.Now().Format(time.RFC3339)
	postID, _ := tc.Parameters["post_id"].(string)

	switch tc.Name {
	case ToolApprovePost:
		tc.Result = &ToolResult{
			Success:   true,
			Message:   fmt.Sprintf("Post %s approved successfully", postID),
			Action:    "approved",
			Timestamp: now,
		}
	case ToolRejectPost:
		reason, _ := tc.Parameters["reason"].(string)
		if reason == "" {
			reason = "No reason provided"
		}
		tc.Result = &ToolResult{
			Success:   true,
			Message:   fmt.Sprintf("Post %s rejected with reason: %s", postID, reason),
			Action:    "rejected",
			Timestamp: now,
		}
	case ToolFlagForReview:
		tc.Result = &ToolResult{
			Success:   true,
			Message:   fmt.Sprintf("Post %s flagged for human review", postID),
			Action:    "flagged",
			Timestamp: now,
		}
	default:
		tc.Result = &ToolResult{
			Success: false,
			Message: fmt.Sprintf("Unknown tool: %s", tc.Name),
		}
	}

	tc.Executed = true
	return tc.Result
}
