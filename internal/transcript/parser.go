package transcript

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/highbeam/agentdeck/internal/model"
)

// maxLineSize accommodates tool outputs embedded in a single line.
const maxLineSize = 10 * 1024 * 1024

// ParseResult is the outcome of a full-transcript parse: the ordered
// message list, aggregate usage, and the latest prompt/tool for listings.
type ParseResult struct {
	SessionID      string
	ProjectPath    string
	Model          string
	Messages       []model.Message
	Stats          model.UsageStats
	LastUserPrompt string
	LastTool       string
}

// ParseAll re-derives a transcript from scratch in two passes. No state is
// carried between invocations, so two parses of the same bytes are
// identical: sequence numbers come from line order and message ids from
// line identity.
func ParseAll(path string, dec Decoder) (*ParseResult, error) {
	lines, err := readAllLines(path)
	if err != nil {
		return nil, err
	}

	events := make([][]Event, len(lines))
	for i, line := range lines {
		events[i] = dec.DecodeLine(line)
	}

	// Pass 1: correlation maps. A repeated begin for one call id
	// overwrites the earlier start timestamp.
	begins := make(map[string]Event)
	ends := make(map[string]Event)
	for _, evs := range events {
		for _, ev := range evs {
			switch ev.Kind {
			case KindToolBegin:
				begins[ev.CallID] = ev
			case KindToolEnd:
				ends[ev.CallID] = ev
			}
		}
	}

	// Pass 2: walk in order, assigning sequence and building messages.
	res := &ParseResult{}
	var seq uint32
	emit := func(msg model.Message) {
		msg.Sequence = seq
		seq++
		res.Messages = append(res.Messages, msg)
	}

	for _, evs := range events {
		for _, ev := range evs {
			if ev.Model != "" && res.Model == "" {
				res.Model = ev.Model
			}
			switch ev.Kind {
			case KindSessionMeta:
				if ev.SessionID != "" && res.SessionID == "" {
					res.SessionID = ev.SessionID
				}
				if ev.ProjectPath != "" && res.ProjectPath == "" {
					res.ProjectPath = ev.ProjectPath
				}

			case KindUserText:
				emit(userMessage(ev, res.SessionID))
				res.LastUserPrompt = ev.Text

			case KindAssistantText:
				emit(assistantMessage(ev, res.SessionID))

			case KindThinking:
				emit(model.Message{
					ID:        messageID(ev, res.SessionID),
					SessionID: res.SessionID,
					Type:      model.MessageThinking,
					Content:   ev.Text,
					Timestamp: ev.Timestamp,
				})

			case KindToolBegin:
				emit(toolMessage(ev, begins, ends, res.SessionID))
				res.LastTool = ev.ToolName

			case KindToolEnd:
				// Paired results are folded into the begin's message;
				// only orphans surface on their own.
				if _, paired := begins[ev.CallID]; paired {
					continue
				}
				emit(model.Message{
					ID:         toolMessageID(ev, res.SessionID),
					SessionID:  res.SessionID,
					Type:       model.MessageToolResult,
					Timestamp:  ev.Timestamp,
					ToolName:   ev.ToolName,
					ToolOutput: ev.Output,
				})

			case KindUsage:
				accumulateUsage(&res.Stats, ev)
			}
		}
	}

	res.Stats.Model = res.Model
	res.Stats.CostUSD = EstimateCost(res.Model, res.Stats)
	return res, nil
}

// toolMessage builds the message for one tool invocation, correlating its
// begin with a result when one exists. Duration is reported only when
// positive; a missing result leaves the call in progress.
func toolMessage(begin Event, begins, ends map[string]Event, sessionID string) model.Message {
	msg := model.Message{
		ID:        toolMessageID(begin, sessionID),
		SessionID: sessionID,
		Type:      model.MessageTool,
		Content:   FormatToolSummary(begin.ToolName, begin.ToolInput),
		Timestamp: begin.Timestamp,
		ToolName:  begin.ToolName,
		ToolInput: begin.ToolInput,
	}

	end, ok := ends[begin.CallID]
	if !ok {
		msg.InProgress = true
		return msg
	}
	msg.ToolOutput = end.Output
	// The same call id may have been re-begun: correlate against the
	// latest recorded start.
	start := begins[begin.CallID].Timestamp
	if d := end.Timestamp.Sub(start); d > 0 {
		ms := d.Milliseconds()
		msg.ToolDuration = &ms
	}
	return msg
}

// accumulateUsage sums token reports but keeps only the latest report's
// context occupancy, which reflects the window right now rather than
// lifetime totals.
func accumulateUsage(stats *model.UsageStats, ev Event) {
	u := ev.Usage
	if u == nil {
		return
	}
	stats.InputTokens += u.InputTokens
	stats.OutputTokens += u.OutputTokens
	stats.CacheReadTokens += u.CacheReadTokens
	stats.CacheCreationTokens += u.CacheCreationTokens
	stats.ContextEstimate = u.ContextTokens()
	stats.APICallCount++
}

func readAllLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 256*1024), maxLineSize)

	var lines [][]byte
	for sc.Scan() {
		line := make([]byte, len(sc.Bytes()))
		copy(line, sc.Bytes())
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		// A torn trailing line is expected for a file mid-append; what
		// was read so far still parses.
		if len(lines) > 0 {
			return lines, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

// SessionFromParse builds the fully derived session for a resync by
// replaying every event through the interpreter.
func SessionFromParse(path string, dec Decoder, fallbackID string) (*SessionState, *ParseResult, error) {
	res, err := ParseAll(path, dec)
	if err != nil {
		return nil, nil, err
	}

	id := res.SessionID
	if id == "" {
		id = fallbackID
	}
	st := NewSessionState(id, dec.Format())

	lines, err := readAllLines(path)
	if err != nil {
		return nil, nil, err
	}
	for _, line := range lines {
		for _, ev := range dec.DecodeLine(line) {
			Apply(ev, st)
		}
	}
	return st, res, nil
}

// SessionIDFallback derives a usable session id from a transcript path
// when no identity line has been observed yet. Claude names transcripts
// after the session uuid, so a uuid basename is taken as-is; anything
// else hashes to a stable synthetic id.
func SessionIDFallback(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if id, err := uuid.Parse(base); err == nil {
		return id.String()
	}
	return stableID("path", path)
}
