package transcript

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/highbeam/agentdeck/internal/model"
)

// firstPromptLimit caps the stored first-prompt preview.
const firstPromptLimit = 80

// SessionState is the interpreter's working state for one transcript:
// the derived session plus the transient call-correlation table.
type SessionState struct {
	Session model.Session
	Pending map[string]model.PendingToolCall
}

// NewSessionState creates working state for a session id.
func NewSessionState(id string, format model.Format) *SessionState {
	return &SessionState{
		Session: model.Session{
			ID:              id,
			Format:          format,
			WorkStatus:      model.StatusUnknown,
			AttentionReason: model.AttentionNone,
		},
		Pending: make(map[string]model.PendingToolCall),
	}
}

// End marks the session over: outstanding calls are discarded (they never
// completed) and the status flips to waiting.
func (st *SessionState) End(at time.Time) {
	st.Pending = make(map[string]model.PendingToolCall)
	st.Session.WorkStatus = model.StatusWaiting
	if st.Session.EndedAt == nil {
		t := at
		st.Session.EndedAt = &t
	}
}

// Apply runs one decoded event through the state-transition table and
// returns any messages the event derives. This is the incremental path;
// ParseAll replays the same transitions over a whole file.
func Apply(ev Event, st *SessionState) []model.Message {
	s := &st.Session
	if !ev.Timestamp.IsZero() {
		if s.StartedAt.IsZero() {
			s.StartedAt = ev.Timestamp
		}
		if ev.Timestamp.After(s.LastActivityAt) {
			s.LastActivityAt = ev.Timestamp
		}
	}
	if ev.Model != "" && s.Model == "" {
		s.Model = ev.Model
	}

	switch ev.Kind {
	case KindSessionMeta:
		if ev.SessionID != "" && s.ID == "" {
			s.ID = ev.SessionID
		}
		if ev.ProjectPath != "" && s.ProjectPath == "" {
			s.ProjectPath = ev.ProjectPath
		}
		return nil

	case KindTurnStarted:
		s.WorkStatus = model.StatusWorking
		s.AttentionReason = model.AttentionNone
		clearPendingFields(s)
		return nil

	case KindTurnEnded:
		s.WorkStatus = model.StatusWaiting
		s.AttentionReason = model.AttentionReply
		return nil

	case KindUserText:
		s.WorkStatus = model.StatusWorking
		s.AttentionReason = model.AttentionNone
		s.PromptCount++
		if s.FirstPrompt == "" {
			s.FirstPrompt = truncate(ev.Text, firstPromptLimit)
		}
		return []model.Message{userMessage(ev, s.ID)}

	case KindAssistantText:
		s.WorkStatus = model.StatusWaiting
		s.AttentionReason = model.AttentionReply
		if s.Name == "" {
			s.Name = displayName(s.ID)
		}
		return []model.Message{assistantMessage(ev, s.ID)}

	case KindThinking:
		return []model.Message{{
			ID:        messageID(ev, s.ID),
			SessionID: s.ID,
			Type:      model.MessageThinking,
			Content:   ev.Text,
			Timestamp: ev.Timestamp,
		}}

	case KindToolBegin:
		s.WorkStatus = model.StatusWorking
		s.AttentionReason = model.AttentionNone
		// A second begin for the same call id overwrites the first's
		// start timestamp.
		st.Pending[ev.CallID] = model.PendingToolCall{
			ToolName:  ev.ToolName,
			ToolInput: ev.ToolInput,
			StartedAt: ev.Timestamp,
		}
		s.LastTool = ev.ToolName
		return []model.Message{{
			ID:         toolMessageID(ev, s.ID),
			SessionID:  s.ID,
			Type:       model.MessageTool,
			Content:    FormatToolSummary(ev.ToolName, ev.ToolInput),
			Timestamp:  ev.Timestamp,
			ToolName:   ev.ToolName,
			ToolInput:  ev.ToolInput,
			InProgress: true,
		}}

	case KindToolEnd:
		// Tool end clears pending state but does not itself force
		// waiting: the next terminal event decides the status.
		s.ToolCount++
		clearPendingFields(s)
		msg := model.Message{
			ID:         toolMessageID(ev, s.ID),
			SessionID:  s.ID,
			Type:       model.MessageTool,
			Timestamp:  ev.Timestamp,
			ToolOutput: ev.Output,
		}
		if call, ok := st.Pending[ev.CallID]; ok {
			delete(st.Pending, ev.CallID)
			msg.ToolName = call.ToolName
			msg.ToolInput = call.ToolInput
			msg.Content = FormatToolSummary(call.ToolName, call.ToolInput)
			if d := ev.Timestamp.Sub(call.StartedAt); d > 0 {
				ms := d.Milliseconds()
				msg.ToolDuration = &ms
			}
		} else if ev.ToolName != "" {
			msg.ToolName = ev.ToolName
			msg.Type = model.MessageToolResult
		} else {
			// Result with no observed begin: kept as data, not an error.
			msg.Type = model.MessageToolResult
		}
		return []model.Message{msg}

	case KindApproval:
		s.WorkStatus = model.StatusPermission
		s.AttentionReason = model.AttentionPermission
		s.PendingToolName = ev.ToolName
		s.PendingToolInput = ev.ToolInput
		return nil

	case KindQuestion:
		s.WorkStatus = model.StatusWaiting
		s.AttentionReason = model.AttentionQuestion
		s.PendingQuestion = ev.Question
		return nil

	case KindUsage:
		if ev.Usage != nil {
			// Absolute overwrite: reports carry totals, not deltas.
			s.TotalTokens = ev.Usage.Total()
		}
		if ev.Model != "" {
			s.Model = ev.Model
		}
		return nil
	}

	// Unknown event kinds are ignored, not errors.
	return nil
}

func clearPendingFields(s *model.Session) {
	s.PendingToolName = ""
	s.PendingToolInput = ""
	s.PendingQuestion = ""
}

func userMessage(ev Event, sessionID string) model.Message {
	return model.Message{
		ID:        messageID(ev, sessionID),
		SessionID: sessionID,
		Type:      model.MessageUser,
		Content:   ev.Text,
		Timestamp: ev.Timestamp,
		Images:    ev.Images,
	}
}

func assistantMessage(ev Event, sessionID string) model.Message {
	return model.Message{
		ID:        messageID(ev, sessionID),
		SessionID: sessionID,
		Type:      model.MessageAssistant,
		Content:   ev.Text,
		Timestamp: ev.Timestamp,
	}
}

// messageID prefers the id the source line carries; otherwise it derives
// one from line identity so re-parses produce the same id.
func messageID(ev Event, sessionID string) string {
	if ev.LineID != "" {
		return ev.LineID
	}
	return stableID(sessionID, fmt.Sprintf("%d", ev.Kind), ev.Timestamp.UTC().Format(time.RFC3339Nano), ev.Text)
}

func toolMessageID(ev Event, sessionID string) string {
	if ev.CallID != "" {
		return stableID(sessionID, "tool", ev.CallID)
	}
	return messageID(ev, sessionID)
}

func truncate(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

var nameAdjectives = []string{
	"amber", "bold", "calm", "deft", "eager", "fleet", "green", "humble",
	"ivory", "jolly", "keen", "lunar", "mellow", "nimble", "opal", "prime",
}

var nameNouns = []string{
	"anvil", "badger", "cedar", "dune", "ember", "falcon", "grove", "harbor",
	"inlet", "juniper", "kestrel", "lagoon", "meadow", "nettle", "osprey", "pine",
}

// displayName assigns a stable human-friendly name derived from the
// session id, so every derivation of the same session agrees.
func displayName(sessionID string) string {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	v := h.Sum32()
	adj := nameAdjectives[v%uint32(len(nameAdjectives))]
	noun := nameNouns[(v/16)%uint32(len(nameNouns))]
	return adj + "-" + noun
}
