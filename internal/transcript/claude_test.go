package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/highbeam/agentdeck/internal/model"
)

func decode(t *testing.T, dec Decoder, line string) []Event {
	t.Helper()
	return dec.DecodeLine([]byte(line))
}

func TestClaudeUserPrompt(t *testing.T) {
	events := decode(t, ClaudeDecoder{},
		`{"type":"user","uuid":"u1","sessionId":"s1","cwd":"/proj","timestamp":"2026-08-28T10:00:00Z","message":{"role":"user","content":"fix the bug"}}`)

	require.Len(t, events, 2)
	assert.Equal(t, KindSessionMeta, events[0].Kind)
	assert.Equal(t, "s1", events[0].SessionID)
	assert.Equal(t, "/proj", events[0].ProjectPath)

	assert.Equal(t, KindUserText, events[1].Kind)
	assert.Equal(t, "fix the bug", events[1].Text)
	assert.Equal(t, "u1", events[1].LineID)
}

func TestClaudeUserBlocks(t *testing.T) {
	events := decode(t, ClaudeDecoder{},
		`{"type":"user","uuid":"u2","sessionId":"s1","message":{"role":"user","content":[{"type":"text","text":"look at this"},{"type":"image","source":{"data":"aGVsbG8=","media_type":"image/png"}}]}}`)

	require.Len(t, events, 2) // meta + user text
	user := events[1]
	assert.Equal(t, KindUserText, user.Kind)
	assert.Equal(t, "look at this", user.Text)
	require.Len(t, user.Images, 1)
	assert.Equal(t, "aGVsbG8=", user.Images[0])
}

func TestClaudeToolResult(t *testing.T) {
	events := decode(t, ClaudeDecoder{},
		`{"type":"user","sessionId":"s1","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"call1","content":"a.txt"}]}}`)

	require.Len(t, events, 2)
	end := events[1]
	assert.Equal(t, KindToolEnd, end.Kind)
	assert.Equal(t, "call1", end.CallID)
	assert.Equal(t, "a.txt", end.Output)
}

func TestClaudeToolResultBlockArray(t *testing.T) {
	events := decode(t, ClaudeDecoder{},
		`{"type":"user","sessionId":"s1","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"c2","content":[{"type":"text","text":"line1"},{"type":"text","text":"line2"}]}]}}`)

	require.Len(t, events, 2)
	assert.Equal(t, "line1\nline2", events[1].Output)
}

func TestClaudeAssistant(t *testing.T) {
	events := decode(t, ClaudeDecoder{},
		`{"type":"assistant","uuid":"a1","sessionId":"s1","message":{"role":"assistant","model":"claude-opus-4","usage":{"input_tokens":10,"output_tokens":5,"cache_read_input_tokens":100,"cache_creation_input_tokens":7},"content":[{"type":"thinking","thinking":"hmm"},{"type":"text","text":"done"},{"type":"tool_use","id":"c1","name":"Bash","input":{"command":"ls"}}]}}`)

	require.Len(t, events, 5) // meta, usage, thinking, tool begin, text
	assert.Equal(t, KindUsage, events[1].Kind)
	assert.Equal(t, int64(122), events[1].Usage.Total())
	assert.Equal(t, "claude-opus-4", events[1].Model)

	assert.Equal(t, KindThinking, events[2].Kind)

	begin := events[3]
	assert.Equal(t, KindToolBegin, begin.Kind)
	assert.Equal(t, "c1", begin.CallID)
	assert.Equal(t, "Bash", begin.ToolName)
	assert.JSONEq(t, `{"command":"ls"}`, begin.ToolInput)

	assert.Equal(t, KindAssistantText, events[4].Kind)
	assert.Equal(t, "done", events[4].Text)
}

func TestClaudeQuestionTool(t *testing.T) {
	events := decode(t, ClaudeDecoder{},
		`{"type":"assistant","sessionId":"s1","message":{"role":"assistant","content":[{"type":"tool_use","id":"q1","name":"AskUserQuestion","input":{"questions":[{"question":"Which approach?"}]}}]}}`)

	require.Len(t, events, 2)
	q := events[1]
	assert.Equal(t, KindQuestion, q.Kind)
	assert.Equal(t, "Which approach?", q.Question)
}

func TestClaudeSystemTextFiltered(t *testing.T) {
	for _, content := range []string{
		"<command-name>/clear</command-name>",
		"some text with <system-reminder>noise</system-reminder>",
		"Caveat: injected by harness",
	} {
		events := decode(t, ClaudeDecoder{},
			`{"type":"user","sessionId":"s1","message":{"role":"user","content":`+jsonString(content)+`}}`)
		require.Len(t, events, 1, "only meta for %q", content)
		assert.Equal(t, KindSessionMeta, events[0].Kind)
	}
}

func TestClaudeMalformedAndUnknown(t *testing.T) {
	assert.Nil(t, decode(t, ClaudeDecoder{}, `{not json`))
	assert.Empty(t, decode(t, ClaudeDecoder{}, `{"type":"summary","summary":"whatever"}`))
}

func jsonString(s string) string {
	out := `"`
	for _, r := range s {
		switch r {
		case '"':
			out += `\"`
		case '\\':
			out += `\\`
		default:
			out += string(r)
		}
	}
	return out + `"`
}

func TestDecoderForPath(t *testing.T) {
	claude := "/home/u/.claude/projects"
	codex := "/home/u/.codex/sessions"

	dec := DecoderForPath("/home/u/.claude/projects/-p/x.jsonl", claude, codex)
	require.NotNil(t, dec)
	assert.Equal(t, model.FormatClaude, dec.Format())

	dec = DecoderForPath("/home/u/.codex/sessions/2026/08/28/r.jsonl", claude, codex)
	require.NotNil(t, dec)
	assert.Equal(t, model.FormatCodex, dec.Format())

	assert.Nil(t, DecoderForPath("/tmp/other.jsonl", claude, codex))
}
