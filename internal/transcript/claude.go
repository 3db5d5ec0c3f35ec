package transcript

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/highbeam/agentdeck/internal/model"
)

// ClaudeDecoder decodes the Claude Code transcript vocabulary: one JSON
// object per line with type user/assistant and a message whose content is
// a string or an array of typed blocks.
type ClaudeDecoder struct{}

// Format returns the vocabulary this decoder handles.
func (ClaudeDecoder) Format() model.Format { return model.FormatClaude }

type claudeLine struct {
	Type      string          `json:"type"`
	UUID      string          `json:"uuid"`
	SessionID string          `json:"sessionId"`
	Cwd       string          `json:"cwd"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *claudeUsage    `json:"usage"`
}

type claudeUsage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
}

type claudeBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Source    *claudeSource   `json:"source,omitempty"`
}

type claudeSource struct {
	Data      string `json:"data"`
	MediaType string `json:"media_type"`
}

// DecodeLine turns one Claude transcript line into events. Malformed JSON
// and unknown types decode to nothing.
func (d ClaudeDecoder) DecodeLine(line []byte) []Event {
	var env claudeLine
	if err := json.Unmarshal(line, &env); err != nil {
		return nil
	}

	ts := parseRFC3339(env.Timestamp)
	var events []Event

	if env.SessionID != "" || env.Cwd != "" {
		events = append(events, Event{
			Kind:        KindSessionMeta,
			Timestamp:   ts,
			SessionID:   env.SessionID,
			ProjectPath: env.Cwd,
		})
	}

	switch env.Type {
	case "user":
		events = append(events, d.decodeUser(&env, ts)...)
	case "assistant":
		events = append(events, d.decodeAssistant(&env, ts)...)
	}
	return events
}

func (d ClaudeDecoder) decodeUser(env *claudeLine, ts time.Time) []Event {
	var msg claudeMessage
	if err := json.Unmarshal(env.Message, &msg); err != nil {
		return nil
	}

	// Content as a plain string: a typed-in prompt.
	var str string
	if err := json.Unmarshal(msg.Content, &str); err == nil {
		if str == "" || isClaudeSystemText(str) {
			return nil
		}
		return []Event{{
			Kind:      KindUserText,
			Timestamp: ts,
			LineID:    env.UUID,
			Text:      str,
		}}
	}

	var blocks []claudeBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return nil
	}

	var events []Event
	var texts []string
	var images []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" && !isClaudeSystemText(b.Text) {
				texts = append(texts, b.Text)
			}
		case "image":
			if b.Source != nil && b.Source.Data != "" {
				images = append(images, b.Source.Data)
			}
		case "tool_result":
			events = append(events, Event{
				Kind:      KindToolEnd,
				Timestamp: ts,
				CallID:    b.ToolUseID,
				Output:    claudeResultText(b.Content),
			})
		}
	}
	if len(texts) > 0 || len(images) > 0 {
		events = append(events, Event{
			Kind:      KindUserText,
			Timestamp: ts,
			LineID:    env.UUID,
			Text:      strings.Join(texts, "\n"),
			Images:    images,
		})
	}
	return events
}

func (d ClaudeDecoder) decodeAssistant(env *claudeLine, ts time.Time) []Event {
	var msg claudeMessage
	if err := json.Unmarshal(env.Message, &msg); err != nil {
		return nil
	}

	var events []Event
	if msg.Usage != nil {
		events = append(events, Event{
			Kind:      KindUsage,
			Timestamp: ts,
			Model:     msg.Model,
			Usage: &model.TokenUsage{
				InputTokens:         msg.Usage.InputTokens,
				OutputTokens:        msg.Usage.OutputTokens,
				CacheReadTokens:     msg.Usage.CacheReadTokens,
				CacheCreationTokens: msg.Usage.CacheCreationTokens,
			},
		})
	}

	var blocks []claudeBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		// Rare: assistant content as a plain string.
		var str string
		if err := json.Unmarshal(msg.Content, &str); err == nil && str != "" {
			events = append(events, Event{
				Kind:      KindAssistantText,
				Timestamp: ts,
				LineID:    env.UUID,
				Model:     msg.Model,
				Text:      str,
			})
		}
		return events
	}

	var texts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				texts = append(texts, b.Text)
			}
		case "thinking":
			if b.Thinking != "" {
				events = append(events, Event{
					Kind:      KindThinking,
					Timestamp: ts,
					Text:      b.Thinking,
				})
			}
		case "tool_use":
			input := compactJSON(b.Input)
			if b.Name == "AskUserQuestion" {
				events = append(events, Event{
					Kind:      KindQuestion,
					Timestamp: ts,
					CallID:    b.ID,
					ToolName:  b.Name,
					Question:  claudeQuestionText(b.Input),
				})
				continue
			}
			events = append(events, Event{
				Kind:      KindToolBegin,
				Timestamp: ts,
				CallID:    b.ID,
				ToolName:  b.Name,
				ToolInput: input,
			})
		}
	}
	if len(texts) > 0 {
		events = append(events, Event{
			Kind:      KindAssistantText,
			Timestamp: ts,
			LineID:    env.UUID,
			Model:     msg.Model,
			Text:      strings.Join(texts, "\n"),
		})
	}
	return events
}

// claudeResultText flattens a tool_result content field, which is either
// a string or an array of text blocks.
func claudeResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var blocks []claudeBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var texts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func claudeQuestionText(input json.RawMessage) string {
	var q struct {
		Question  string `json:"question"`
		Questions []struct {
			Question string `json:"question"`
		} `json:"questions"`
	}
	if err := json.Unmarshal(input, &q); err != nil {
		return ""
	}
	if q.Question != "" {
		return q.Question
	}
	if len(q.Questions) > 0 {
		return q.Questions[0].Question
	}
	return ""
}

// isClaudeSystemText reports injected command/system wrappers that are not
// something the user typed.
func isClaudeSystemText(text string) bool {
	return strings.HasPrefix(text, "<local-command-") ||
		strings.HasPrefix(text, "<command-name>") ||
		strings.Contains(text, "<system-reminder>") ||
		strings.HasPrefix(text, "Caveat:")
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func parseRFC3339(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
