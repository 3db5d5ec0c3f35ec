package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatToolSummary renders a short human-readable summary of a tool
// invocation from its name and serialized input. Each known tool has a
// fixed formatting rule; unknown tools fall back to their first string
// parameter.
func FormatToolSummary(name, input string) string {
	var params map[string]any
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		// Codex shell commands arrive as a plain command string.
		if input != "" {
			return fmt.Sprintf("%s: %s", name, truncate(input, 60))
		}
		return name
	}

	switch name {
	case "Read":
		if fp, ok := params["file_path"].(string); ok {
			return fmt.Sprintf("Read: %s", shortPath(fp))
		}
	case "Write":
		if fp, ok := params["file_path"].(string); ok {
			return fmt.Sprintf("Write: %s", shortPath(fp))
		}
	case "Edit":
		if fp, ok := params["file_path"].(string); ok {
			return fmt.Sprintf("Edit: %s", shortPath(fp))
		}
	case "Glob":
		if p, ok := params["pattern"].(string); ok {
			return fmt.Sprintf("Glob: %s", p)
		}
	case "Grep":
		if p, ok := params["pattern"].(string); ok {
			return fmt.Sprintf("Grep: %s", truncate(p, 40))
		}
	case "Bash", "shell":
		if cmd, ok := params["command"].(string); ok {
			return fmt.Sprintf("%s: %s", name, truncate(cmd, 60))
		}
	case "WebSearch":
		if q, ok := params["query"].(string); ok {
			return fmt.Sprintf("WebSearch: %s", truncate(q, 50))
		}
	case "WebFetch":
		if u, ok := params["url"].(string); ok {
			return fmt.Sprintf("WebFetch: %s", truncate(u, 60))
		}
	case "Task":
		if desc, ok := params["description"].(string); ok {
			return fmt.Sprintf("Task: %s", truncate(desc, 50))
		}
	case "apply_patch":
		if p, ok := params["path"].(string); ok {
			return fmt.Sprintf("apply_patch: %s", shortPath(p))
		}
	}

	// Generic: first non-empty string param.
	for _, v := range params {
		if s, ok := v.(string); ok && s != "" {
			return fmt.Sprintf("%s: %s", name, truncate(s, 50))
		}
	}
	return name
}

// shortPath keeps the last three path components.
func shortPath(p string) string {
	parts := strings.Split(p, "/")
	if len(parts) <= 3 {
		return p
	}
	return strings.Join(parts[len(parts)-3:], "/")
}
