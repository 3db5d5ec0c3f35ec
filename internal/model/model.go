// Package model holds the derived session state shared by the transcript
// pipeline, the store, and the IPC surface.
package model

import "time"

// WorkStatus is the session's current high-level activity.
type WorkStatus string

const (
	StatusUnknown    WorkStatus = "unknown"
	StatusWorking    WorkStatus = "working"
	StatusWaiting    WorkStatus = "waiting"
	StatusPermission WorkStatus = "permission"
)

// AttentionReason says why a waiting session needs the user.
type AttentionReason string

const (
	AttentionNone       AttentionReason = "none"
	AttentionPermission AttentionReason = "awaiting_permission"
	AttentionQuestion   AttentionReason = "awaiting_question"
	AttentionReply      AttentionReason = "awaiting_reply"
)

// Format identifies the transcript vocabulary a session was written in.
type Format string

const (
	FormatClaude Format = "claude"
	FormatCodex  Format = "codex"
)

// Session is the derived state of one coding-agent session. It is created
// on the first identity-carrying event for a session id and mutated by
// later events; it is never deleted, only ended.
type Session struct {
	ID               string          `json:"id"`
	Format           Format          `json:"format"`
	ProjectPath      string          `json:"project_path"`
	Branch           string          `json:"branch,omitempty"`
	Model            string          `json:"model,omitempty"`
	Name             string          `json:"name,omitempty"`
	FirstPrompt      string          `json:"first_prompt,omitempty"`
	WorkStatus       WorkStatus      `json:"work_status"`
	AttentionReason  AttentionReason `json:"attention_reason"`
	PendingToolName  string          `json:"pending_tool_name,omitempty"`
	PendingToolInput string          `json:"pending_tool_input,omitempty"`
	PendingQuestion  string          `json:"pending_question,omitempty"`
	LastTool         string          `json:"last_tool,omitempty"`
	PromptCount      int             `json:"prompt_count"`
	ToolCount        int             `json:"tool_count"`
	TotalTokens      int64           `json:"total_tokens"`
	StartedAt        time.Time       `json:"started_at"`
	LastActivityAt   time.Time       `json:"last_activity_at"`
	EndedAt          *time.Time      `json:"ended_at,omitempty"`
}

// MessageType classifies a derived message.
type MessageType string

const (
	MessageUser       MessageType = "user"
	MessageAssistant  MessageType = "assistant"
	MessageTool       MessageType = "tool"
	MessageToolResult MessageType = "tool_result"
	MessageThinking   MessageType = "thinking"
	MessageSystem     MessageType = "system"
)

// Message is one entry in a session's derived history. Sequence is assigned
// at parse time and is the only sort key stable across re-parses; source
// timestamps are neither unique nor monotonic across formats. ID is stable
// across re-parses of the same underlying line.
type Message struct {
	ID           string      `json:"id"`
	SessionID    string      `json:"session_id"`
	Type         MessageType `json:"type"`
	Content      string      `json:"content,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Sequence     uint32      `json:"sequence"`
	ToolName     string      `json:"tool_name,omitempty"`
	ToolInput    string      `json:"tool_input,omitempty"`
	ToolOutput   string      `json:"tool_output,omitempty"`
	ToolDuration *int64      `json:"tool_duration_ms,omitempty"`
	InputTokens  *int64      `json:"input_tokens,omitempty"`
	OutputTokens *int64      `json:"output_tokens,omitempty"`
	Images       []string    `json:"images,omitempty"`
	InProgress   bool        `json:"in_progress"`
}

// PendingToolCall is the transient correlation entry for a tool invocation
// whose result has not arrived yet. At most one entry exists per call id.
type PendingToolCall struct {
	ToolName  string
	ToolInput string
	StartedAt time.Time
}

// TokenUsage is one usage report as found on a transcript line.
type TokenUsage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens"`
}

// Total returns the sum of all token counts in the report.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

// ContextTokens returns the context-occupancy view of the report:
// everything that sits in the model's window right now.
func (u TokenUsage) ContextTokens() int64 {
	return u.InputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

// UsageStats aggregates usage over a whole transcript. Token totals are
// summed across reports; ContextEstimate is the latest report's context
// occupancy, not a lifetime sum.
type UsageStats struct {
	InputTokens         int64   `json:"input_tokens"`
	OutputTokens        int64   `json:"output_tokens"`
	CacheReadTokens     int64   `json:"cache_read_tokens"`
	CacheCreationTokens int64   `json:"cache_creation_tokens"`
	Model               string  `json:"model,omitempty"`
	ContextEstimate     int64   `json:"context_estimate"`
	CostUSD             float64 `json:"cost_usd"`
	APICallCount        int     `json:"api_call_count"`
}
