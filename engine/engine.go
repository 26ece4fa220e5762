// Package engine runs the agentic conversation loop: it sends history to
// the model, executes any tool calls the reply contains, feeds results
// back, and repeats until the model answers in plain text.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"

	"ocode/config"
	"ocode/ollama"
	"ocode/prompts"
	"ocode/tools"
)

// MaxToolIterations bounds the backend/tool round trips in one turn.
const MaxToolIterations = 10

const toolResultHeader = "[Tool execution results]"

const (
	retryInstruction     = "\n\n⚠️ Some tools returned errors. Please analyze and attempt to fix."
	summarizeInstruction = "\n\nPlease respond to the user based on the above results."
)

// Tool results longer than toolResultLimit runes are compressed to their
// head and tail when compaction is enabled.
const (
	toolResultLimit = 800
	toolResultHead  = 300
	toolResultTail  = 200
)

// Backend is the model side of the loop. *ollama.Client satisfies it.
type Backend interface {
	Chat(ctx context.Context, messages []api.Message) (string, ollama.Metrics, error)
	ChatStream(ctx context.Context, messages []api.Message, fn func(chunk string) error) error
}

// StreamEvent is one item on the channel returned by Stream: a content
// fragment, or a terminal error.
type StreamEvent struct {
	Content string
	Err     error
}

// Engine holds one conversation. Not safe for concurrent turns; each
// session owns its own Engine.
type Engine struct {
	client   Backend
	executor *tools.Executor

	history          []api.Message
	maxContextTokens int
	compactMode      bool
	workspace        string
	projectMemory    bool
}

func New(client Backend, executor *tools.Executor, cfg *config.Config) *Engine {
	e := &Engine{
		client:           client,
		executor:         executor,
		maxContextTokens: cfg.MaxContextTokens,
		compactMode:      cfg.CompactMode,
		workspace:        executor.Root(),
	}
	e.Clear()
	return e
}

// Clear resets history to just the system prompt, re-reading project
// memory from the workspace.
func (e *Engine) Clear() {
	system := prompts.SystemPrompt
	memory := prompts.LoadProjectMemory(e.workspace)
	e.projectMemory = memory != ""
	e.history = []api.Message{{Role: "system", Content: system + memory}}
}

func (e *Engine) MessageCount() int { return len(e.history) }

// EstimatedTokens sums the token estimate over all history contents.
func (e *Engine) EstimatedTokens() int {
	total := 0
	for _, m := range e.history {
		total += EstimateTokens(m.Content)
	}
	return total
}

func (e *Engine) HasProjectMemory() bool { return e.projectMemory }

// Respond runs one full turn and returns the model's final text. Backend
// errors propagate; the user message stays in history so the next attempt
// retries the same turn.
func (e *Engine) Respond(ctx context.Context, userMessage string) (string, error) {
	e.history = append(e.history, api.Message{Role: "user", Content: userMessage})
	e.maybeCompact()

	var last string
	for i := 0; i < MaxToolIterations; i++ {
		reply, _, err := e.client.Chat(ctx, e.history)
		if err != nil {
			return "", fmt.Errorf("backend request failed: %w", err)
		}
		e.history = append(e.history, api.Message{Role: "assistant", Content: reply})
		last = reply

		calls := tools.ParseToolCalls(reply)
		if len(calls) == 0 {
			return reply, nil
		}
		e.history = append(e.history, api.Message{
			Role:    "user",
			Content: e.runTools(ctx, calls),
		})
	}
	if config.Debug {
		config.DebugLog.Printf("tool iteration cap reached (%d)", MaxToolIterations)
	}
	return last, nil
}

// Stream runs one full turn, emitting content fragments on the returned
// channel as they arrive. The channel is closed when the turn ends; it is
// finite and cannot be restarted. Cancelling ctx stops the turn, keeping
// whatever assistant content had accumulated in history.
func (e *Engine) Stream(ctx context.Context, userMessage string) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)

		e.history = append(e.history, api.Message{Role: "user", Content: userMessage})
		e.maybeCompact()

		for i := 0; i < MaxToolIterations; i++ {
			var buf strings.Builder
			err := e.client.ChatStream(ctx, e.history, func(chunk string) error {
				buf.WriteString(chunk)
				select {
				case ch <- StreamEvent{Content: chunk}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			if err != nil {
				// Keep the partial reply so history has no dangling
				// unanswered user message.
				if buf.Len() > 0 {
					e.history = append(e.history, api.Message{Role: "assistant", Content: buf.String()})
				}
				select {
				case ch <- StreamEvent{Err: fmt.Errorf("backend request failed: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			reply := buf.String()
			e.history = append(e.history, api.Message{Role: "assistant", Content: reply})

			calls := tools.ParseToolCalls(reply)
			if len(calls) == 0 {
				return
			}
			e.history = append(e.history, api.Message{
				Role:    "user",
				Content: e.runTools(ctx, calls),
			})
		}
	}()
	return ch
}

// runTools executes calls sequentially in document order and builds the
// follow-up user message carrying the results.
func (e *Engine) runTools(ctx context.Context, calls []tools.ToolCall) string {
	results := make([]string, 0, len(calls))
	hadError := false
	for _, call := range calls {
		if config.Debug {
			config.DebugLog.Printf("executing tool %s", call.Name)
		}
		result := e.executor.Execute(ctx, call)
		if strings.Contains(result, tools.FailureMarker) {
			hadError = true
		}
		// Label each result so the model can map results back to calls
		// when several tools ran in one turn.
		results = append(results, fmt.Sprintf("**[%s result]**\n%s",
			call.Name, e.compactToolResult(result)))
	}

	msg := toolResultHeader + "\n\n" + strings.Join(results, "\n\n---\n\n")
	if hadError {
		return msg + retryInstruction
	}
	return msg + summarizeInstruction
}

// compactToolResult shortens oversized tool output to its head and tail.
// Full output is kept when compaction is disabled.
func (e *Engine) compactToolResult(result string) string {
	if !e.compactMode {
		return result
	}
	r := []rune(result)
	if len(r) <= toolResultLimit {
		return result
	}
	omitted := len(r) - toolResultHead - toolResultTail
	return string(r[:toolResultHead]) +
		fmt.Sprintf("\n\n... (%d characters truncated) ...\n\n", omitted) +
		string(r[len(r)-toolResultTail:])
}
