package engine

import (
	"strings"

	"github.com/ollama/ollama/api"

	"ocode/config"
)

const (
	// PreserveRecent messages at the tail of history survive compaction
	// verbatim.
	PreserveRecent = 6

	// compactThresholdPct of the context budget triggers compaction.
	compactThresholdPct = 80

	// summaryLineLimit caps how many history lines the summary keeps.
	summaryLineLimit = 10
)

// maybeCompact replaces the middle of a long history with a one-message
// summary, keeping the system prompt and the last PreserveRecent messages
// untouched. No-op unless compaction is enabled and the estimated token
// count exceeds the threshold.
func (e *Engine) maybeCompact() {
	if !e.compactMode {
		return
	}
	if e.EstimatedTokens() <= e.maxContextTokens*compactThresholdPct/100 {
		return
	}
	if len(e.history) <= 1+PreserveRecent {
		return
	}

	middle := e.history[1 : len(e.history)-PreserveRecent]
	recent := e.history[len(e.history)-PreserveRecent:]

	summary := api.Message{Role: "user", Content: summarize(middle)}

	compacted := make([]api.Message, 0, 2+PreserveRecent)
	compacted = append(compacted, e.history[0], summary)
	compacted = append(compacted, recent...)

	if config.Debug {
		config.DebugLog.Printf("compacted history: %d -> %d messages",
			len(e.history), len(compacted))
	}
	e.history = compacted
}

// summarize renders dropped messages as one line each, keeping only the
// most recent summaryLineLimit lines.
func summarize(messages []api.Message) string {
	var lines []string
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			first, _, _ := strings.Cut(m.Content, "\n")
			lines = append(lines, "Assistant: "+truncateRunes(first, 150))
		case "user":
			if strings.HasPrefix(m.Content, toolResultHeader) {
				lines = append(lines, "[tool results processed]")
			} else {
				lines = append(lines, "User: "+truncateRunes(m.Content, 100))
			}
		}
	}
	if len(lines) > summaryLineLimit {
		lines = lines[len(lines)-summaryLineLimit:]
	}
	return "[Previous conversation summary]\n" + strings.Join(lines, "\n")
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
