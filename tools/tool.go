// Package tools implements the tool-call protocol: parsing structured
// invocations out of model output and executing them against a sandboxed
// workspace.
package tools

// Tool names form a closed set. Dispatch is a switch in Executor.Execute
// so an unknown name is handled in exactly one place.
const (
	ToolReadFile      = "read_file"
	ToolWriteFile     = "write_file"
	ToolEditFile      = "edit_file"
	ToolListDirectory = "list_directory"
	ToolSearchFiles   = "search_files"
	ToolGrepSearch    = "grep_search"
	ToolRunCommand    = "run_command"
)

// Result text markers. Downstream prompts instruct the model on how to
// react to these exact glyphs, so they must not change.
const (
	SuccessMarker = "✅"
	FailureMarker = "❌"
	SkipMarker    = "⏭️"
)

// ToolCall is one parsed invocation. Parameters hold every JSON key from
// the block except "tool".
type ToolCall struct {
	Name   string
	Params map[string]any
}

func getString(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// getInt reads a numeric parameter; JSON numbers decode as float64.
func getInt(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// cutRunes truncates s to at most n runes. Cuts land on rune boundaries
// so truncated results stay valid UTF-8.
func cutRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
