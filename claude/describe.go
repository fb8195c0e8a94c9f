package claude

import (
	"fmt"
	"strings"
)

// DescribeToolUse renders a tool invocation as a short human line for the
// status message ("Reading main.go", "Running command", ...).
func DescribeToolUse(name string, input map[string]any) string {
	switch name {
	case "Read":
		return "Reading " + shortTail(inputString(input, "file_path"), 40)
	case "Glob":
		return "Searching for " + inputString(input, "pattern")
	case "Grep":
		return fmt.Sprintf("Searching code for %q", inputString(input, "pattern"))
	case "Bash":
		return "Running command"
	case "Write":
		return "Writing " + shortTail(inputString(input, "file_path"), 40)
	case "Edit":
		return "Editing " + shortTail(inputString(input, "file_path"), 40)
	case "WebSearch":
		return fmt.Sprintf("Searching web for %q", inputString(input, "query"))
	case "WebFetch":
		return "Fetching " + shortTail(inputString(input, "url"), 60)
	case "Task":
		return "Running subtask"
	default:
		return "Using " + name
	}
}

func inputString(input map[string]any, key string) string {
	if input == nil {
		return ""
	}
	s, _ := input[key].(string)
	return strings.TrimSpace(s)
}

// shortTail keeps the end of s, which for paths and URLs is the part worth
// reading, prefixing "..." when truncated.
func shortTail(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return "..." + s[len(s)-(max-3):]
}
