package tools

import (
	"encoding/json"
	"regexp"
	"strings"
)

// toolBlockRe matches fenced code blocks tagged "tool". The body must be a
// single JSON object; see ParseToolCalls.
var toolBlockRe = regexp.MustCompile("(?s)```tool\\s*\\n(.+?)\\n```")

// ParseToolCalls extracts tool invocations from model output, in document
// order. A block whose body is not valid JSON, not an object, or missing
// the "tool" key is skipped: models emit illustrative JSON that is not a
// real invocation, and one bad block must not fail the whole response.
func ParseToolCalls(text string) []ToolCall {
	matches := toolBlockRe.FindAllStringSubmatch(text, -1)

	var calls []ToolCall
	for _, m := range matches {
		var data map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &data); err != nil {
			continue
		}

		name, ok := data["tool"].(string)
		if !ok || name == "" {
			continue
		}
		delete(data, "tool")

		calls = append(calls, ToolCall{Name: name, Params: data})
	}

	return calls
}

// StripToolBlocks removes ```tool fences from text. Transports use this so
// raw invocations are not shown to the end user.
func StripToolBlocks(text string) string {
	return toolBlockRe.ReplaceAllString(text, "")
}
