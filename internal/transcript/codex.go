package transcript

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/highbeam/agentdeck/internal/model"
)

// CodexDecoder decodes the Codex rollout vocabulary: one JSON object per
// line with type session_meta / turn_context / event_msg / response_item,
// the payload further discriminated by payload.type.
type CodexDecoder struct{}

// Format returns the vocabulary this decoder handles.
func (CodexDecoder) Format() model.Format { return model.FormatCodex }

type codexLine struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type codexPayload struct {
	Type string `json:"type"`

	// session_meta
	ID         string `json:"id"`
	Cwd        string `json:"cwd"`
	CLIVersion string `json:"cli_version"`

	// turn_context
	Model string `json:"model"`

	// event_msg bodies
	Message  string          `json:"message"`
	Text     string          `json:"text"`
	CallID   string          `json:"call_id"`
	Command  json.RawMessage `json:"command"`
	Stdout   string          `json:"stdout"`
	Stderr   string          `json:"stderr"`
	ExitCode *int            `json:"exit_code"`
	Patch    string          `json:"patch"`
	Changes  json.RawMessage `json:"changes"`
	Info     *codexTokenInfo `json:"info"`

	// response_item bodies
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Name      string          `json:"name"`
	Arguments string          `json:"arguments"`
	Output    json.RawMessage `json:"output"`
}

type codexTokenInfo struct {
	TotalTokenUsage *codexTokenUsage `json:"total_token_usage"`
	LastTokenUsage  *codexTokenUsage `json:"last_token_usage"`
}

type codexTokenUsage struct {
	InputTokens           int64 `json:"input_tokens"`
	CachedInputTokens     int64 `json:"cached_input_tokens"`
	OutputTokens          int64 `json:"output_tokens"`
	ReasoningOutputTokens int64 `json:"reasoning_output_tokens"`
}

type codexContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DecodeLine turns one Codex rollout line into events. Malformed JSON and
// unknown tags decode to nothing.
func (d CodexDecoder) DecodeLine(line []byte) []Event {
	var env codexLine
	if err := json.Unmarshal(line, &env); err != nil {
		return nil
	}

	var p codexPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil
		}
	}
	ts := parseRFC3339(env.Timestamp)

	switch env.Type {
	case "session_meta":
		return []Event{{
			Kind:        KindSessionMeta,
			Timestamp:   ts,
			SessionID:   p.ID,
			ProjectPath: p.Cwd,
		}}
	case "turn_context":
		ev := Event{Kind: KindSessionMeta, Timestamp: ts, ProjectPath: p.Cwd, Model: p.Model}
		return []Event{ev}
	case "event_msg":
		return d.decodeEventMsg(&p, ts)
	case "response_item":
		return d.decodeResponseItem(&p, ts)
	}
	return nil
}

func (d CodexDecoder) decodeEventMsg(p *codexPayload, ts time.Time) []Event {
	switch p.Type {
	case "task_started":
		return []Event{{Kind: KindTurnStarted, Timestamp: ts}}
	case "task_complete", "turn_aborted":
		return []Event{{Kind: KindTurnEnded, Timestamp: ts}}
	case "user_message":
		if p.Message == "" || isCodexSystemText(p.Message) {
			return nil
		}
		return []Event{{Kind: KindUserText, Timestamp: ts, Text: p.Message}}
	case "agent_message":
		if p.Message == "" {
			return nil
		}
		return []Event{{Kind: KindAssistantText, Timestamp: ts, Text: p.Message}}
	case "agent_reasoning":
		if p.Text == "" {
			return nil
		}
		return []Event{{Kind: KindThinking, Timestamp: ts, Text: p.Text}}
	case "exec_command_begin":
		return []Event{{
			Kind:      KindToolBegin,
			Timestamp: ts,
			CallID:    p.CallID,
			ToolName:  "shell",
			ToolInput: codexCommandString(p.Command),
		}}
	case "exec_command_end":
		out := p.Stdout
		if out == "" {
			out = p.Stderr
		}
		return []Event{{
			Kind:      KindToolEnd,
			Timestamp: ts,
			CallID:    p.CallID,
			ToolName:  "shell",
			Output:    out,
		}}
	case "exec_approval_request":
		return []Event{{
			Kind:      KindApproval,
			Timestamp: ts,
			CallID:    p.CallID,
			ToolName:  "shell",
			ToolInput: codexCommandString(p.Command),
		}}
	case "apply_patch_approval_request":
		input := p.Patch
		if input == "" && len(p.Changes) > 0 {
			input = string(p.Changes)
		}
		ev := Event{
			Kind:      KindApproval,
			Timestamp: ts,
			CallID:    p.CallID,
			ToolName:  "apply_patch",
			ToolInput: input,
		}
		if path := patchTouchedPath(p.Patch); path != "" {
			ev.Output = path
		}
		return []Event{ev}
	case "patch_apply_begin":
		return []Event{{
			Kind:      KindToolBegin,
			Timestamp: ts,
			CallID:    p.CallID,
			ToolName:  "apply_patch",
			ToolInput: patchTouchedPath(p.Patch),
		}}
	case "patch_apply_end":
		return []Event{{
			Kind:      KindToolEnd,
			Timestamp: ts,
			CallID:    p.CallID,
			ToolName:  "apply_patch",
			Output:    p.Stdout,
		}}
	case "token_count":
		usage := p.Info.usage()
		if usage == nil {
			return nil
		}
		return []Event{{Kind: KindUsage, Timestamp: ts, Usage: usage}}
	}
	return nil
}

func (d CodexDecoder) decodeResponseItem(p *codexPayload, ts time.Time) []Event {
	switch p.Type {
	case "message":
		text := codexContentText(p.Content)
		if text == "" {
			return nil
		}
		switch p.Role {
		case "user":
			if isCodexSystemText(text) {
				return nil
			}
			return []Event{{Kind: KindUserText, Timestamp: ts, Text: text}}
		case "assistant":
			return []Event{{Kind: KindAssistantText, Timestamp: ts, Text: text}}
		}
		return nil
	case "function_call":
		return []Event{{
			Kind:      KindToolBegin,
			Timestamp: ts,
			CallID:    p.CallID,
			ToolName:  p.Name,
			ToolInput: p.Arguments,
		}}
	case "function_call_output":
		return []Event{{
			Kind:      KindToolEnd,
			Timestamp: ts,
			CallID:    p.CallID,
			Output:    codexOutputText(p.Output),
		}}
	case "reasoning":
		text := codexContentText(p.Content)
		if text == "" {
			return nil
		}
		return []Event{{Kind: KindThinking, Timestamp: ts, Text: text}}
	}
	return nil
}

func (i *codexTokenInfo) usage() *model.TokenUsage {
	if i == nil || i.TotalTokenUsage == nil {
		return nil
	}
	u := i.TotalTokenUsage
	return &model.TokenUsage{
		InputTokens:     u.InputTokens - u.CachedInputTokens,
		OutputTokens:    u.OutputTokens,
		CacheReadTokens: u.CachedInputTokens,
	}
}

// codexCommandString renders an exec command, which arrives either as a
// JSON array of argv strings or as a plain string.
func codexCommandString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var argv []string
	if err := json.Unmarshal(raw, &argv); err == nil {
		return strings.Join(argv, " ")
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return string(raw)
}

// codexContentText joins the text of input_text/output_text/summary_text
// items in a response_item content array.
func codexContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var items []codexContentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	var texts []string
	for _, it := range items {
		switch it.Type {
		case "input_text", "output_text", "summary_text":
			if it.Text != "" {
				texts = append(texts, it.Text)
			}
		}
	}
	return strings.Join(texts, "\n")
}

// codexOutputText flattens a function_call_output payload, which is either
// a plain string or an object with an "output" string field.
func codexOutputText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var obj struct {
		Output string `json:"output"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Output
	}
	return ""
}

// patchTouchedPath recovers the first touched file from a raw patch body
// by scanning for its first "*** Add File:" or "*** Update File:" header.
func patchTouchedPath(patch string) string {
	for _, line := range strings.Split(patch, "\n") {
		for _, prefix := range []string{"*** Add File:", "*** Update File:", "*** Delete File:"} {
			if strings.HasPrefix(line, prefix) {
				return strings.TrimSpace(strings.TrimPrefix(line, prefix))
			}
		}
	}
	return ""
}

// isCodexSystemText reports harness-injected user content that the user
// did not type.
func isCodexSystemText(text string) bool {
	return strings.Contains(text, "<environment_context>") ||
		strings.Contains(text, "<permissions") ||
		strings.Contains(text, "AGENTS.md") ||
		strings.HasPrefix(text, "<user_instructions>")
}
