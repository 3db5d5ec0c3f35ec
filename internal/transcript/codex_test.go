package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodexSessionMeta(t *testing.T) {
	events := decode(t, CodexDecoder{},
		`{"type":"session_meta","timestamp":"2026-08-28T09:00:00Z","payload":{"id":"rollout-1","cwd":"/proj","cli_version":"0.21.0"}}`)

	require.Len(t, events, 1)
	assert.Equal(t, KindSessionMeta, events[0].Kind)
	assert.Equal(t, "rollout-1", events[0].SessionID)
	assert.Equal(t, "/proj", events[0].ProjectPath)
}

func TestCodexTurnContext(t *testing.T) {
	events := decode(t, CodexDecoder{},
		`{"type":"turn_context","payload":{"model":"gpt-5-codex","cwd":"/proj"}}`)

	require.Len(t, events, 1)
	assert.Equal(t, KindSessionMeta, events[0].Kind)
	assert.Equal(t, "gpt-5-codex", events[0].Model)
}

func TestCodexTurnLifecycle(t *testing.T) {
	started := decode(t, CodexDecoder{}, `{"type":"event_msg","payload":{"type":"task_started"}}`)
	require.Len(t, started, 1)
	assert.Equal(t, KindTurnStarted, started[0].Kind)

	done := decode(t, CodexDecoder{}, `{"type":"event_msg","payload":{"type":"task_complete"}}`)
	require.Len(t, done, 1)
	assert.Equal(t, KindTurnEnded, done[0].Kind)

	aborted := decode(t, CodexDecoder{}, `{"type":"event_msg","payload":{"type":"turn_aborted"}}`)
	require.Len(t, aborted, 1)
	assert.Equal(t, KindTurnEnded, aborted[0].Kind)
}

func TestCodexExecCommand(t *testing.T) {
	begin := decode(t, CodexDecoder{},
		`{"type":"event_msg","payload":{"type":"exec_command_begin","call_id":"c1","command":["bash","-lc","ls"]}}`)
	require.Len(t, begin, 1)
	assert.Equal(t, KindToolBegin, begin[0].Kind)
	assert.Equal(t, "shell", begin[0].ToolName)
	assert.Equal(t, "bash -lc ls", begin[0].ToolInput)

	end := decode(t, CodexDecoder{},
		`{"type":"event_msg","payload":{"type":"exec_command_end","call_id":"c1","stdout":"a.txt\n","exit_code":0}}`)
	require.Len(t, end, 1)
	assert.Equal(t, KindToolEnd, end[0].Kind)
	assert.Equal(t, "a.txt\n", end[0].Output)

	failed := decode(t, CodexDecoder{},
		`{"type":"event_msg","payload":{"type":"exec_command_end","call_id":"c2","stdout":"","stderr":"boom","exit_code":1}}`)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].Output, "stderr surfaces when stdout is empty")
}

func TestCodexCommandAsString(t *testing.T) {
	events := decode(t, CodexDecoder{},
		`{"type":"event_msg","payload":{"type":"exec_command_begin","call_id":"c1","command":"make test"}}`)
	require.Len(t, events, 1)
	assert.Equal(t, "make test", events[0].ToolInput)
}

func TestCodexApprovalRequests(t *testing.T) {
	exec := decode(t, CodexDecoder{},
		`{"type":"event_msg","payload":{"type":"exec_approval_request","call_id":"c3","command":["rm","-rf","build"]}}`)
	require.Len(t, exec, 1)
	assert.Equal(t, KindApproval, exec[0].Kind)
	assert.Equal(t, "shell", exec[0].ToolName)
	assert.Equal(t, "rm -rf build", exec[0].ToolInput)

	patch := decode(t, CodexDecoder{},
		`{"type":"event_msg","payload":{"type":"apply_patch_approval_request","call_id":"c4","patch":"*** Begin Patch\n*** Update File: src/main.go\n@@\n*** End Patch"}}`)
	require.Len(t, patch, 1)
	assert.Equal(t, KindApproval, patch[0].Kind)
	assert.Equal(t, "apply_patch", patch[0].ToolName)
	assert.Equal(t, "src/main.go", patch[0].Output)
}

func TestCodexPatchApply(t *testing.T) {
	begin := decode(t, CodexDecoder{},
		`{"type":"event_msg","payload":{"type":"patch_apply_begin","call_id":"c5","patch":"*** Begin Patch\n*** Add File: new.go\n*** End Patch"}}`)
	require.Len(t, begin, 1)
	assert.Equal(t, KindToolBegin, begin[0].Kind)
	assert.Equal(t, "new.go", begin[0].ToolInput)
}

func TestCodexTokenCount(t *testing.T) {
	events := decode(t, CodexDecoder{},
		`{"type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":1000,"cached_input_tokens":600,"output_tokens":50}}}}`)

	require.Len(t, events, 1)
	u := events[0].Usage
	require.NotNil(t, u)
	assert.Equal(t, int64(400), u.InputTokens, "cached portion subtracted")
	assert.Equal(t, int64(600), u.CacheReadTokens)
	assert.Equal(t, int64(1050), u.Total())

	empty := decode(t, CodexDecoder{}, `{"type":"event_msg","payload":{"type":"token_count"}}`)
	assert.Empty(t, empty)
}

func TestCodexResponseItems(t *testing.T) {
	user := decode(t, CodexDecoder{},
		`{"type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"hello"}]}}`)
	require.Len(t, user, 1)
	assert.Equal(t, KindUserText, user[0].Kind)

	call := decode(t, CodexDecoder{},
		`{"type":"response_item","payload":{"type":"function_call","call_id":"f1","name":"read_file","arguments":"{\"path\":\"a.go\"}"}}`)
	require.Len(t, call, 1)
	assert.Equal(t, KindToolBegin, call[0].Kind)
	assert.Equal(t, "read_file", call[0].ToolName)

	out := decode(t, CodexDecoder{},
		`{"type":"response_item","payload":{"type":"function_call_output","call_id":"f1","output":{"output":"contents"}}}`)
	require.Len(t, out, 1)
	assert.Equal(t, KindToolEnd, out[0].Kind)
	assert.Equal(t, "contents", out[0].Output)
}

func TestCodexSystemTextFiltered(t *testing.T) {
	events := decode(t, CodexDecoder{},
		`{"type":"event_msg","payload":{"type":"user_message","message":"<environment_context>stuff</environment_context>"}}`)
	assert.Empty(t, events)
}

func TestCodexUnknownPayloadIgnored(t *testing.T) {
	assert.Empty(t, decode(t, CodexDecoder{}, `{"type":"event_msg","payload":{"type":"future_thing"}}`))
	assert.Nil(t, decode(t, CodexDecoder{}, `not json at all`))
}
