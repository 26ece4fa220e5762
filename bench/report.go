// Package bench measures Ollama throughput: prompt processing and
// generation speed per round, with a sqlite-backed run history.
package bench

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"ocode/ollama"
)

// RoundResult holds the per-round numbers derived from the response
// counters (counts plus nanosecond durations).
type RoundResult struct {
	Round        int     `json:"round"`
	PromptTokens int     `json:"prompt_tokens"`
	OutputTokens int     `json:"output_tokens"`
	PromptTPS    float64 `json:"prompt_tps"`
	EvalTPS      float64 `json:"eval_tps"`
	TotalMillis  int64   `json:"total_ms"`
}

type Report struct {
	ID        string        `json:"id"`
	Model     string        `json:"model"`
	Mode      string        `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
	Rounds    []RoundResult `json:"rounds"`
}

// roundFromMetrics converts raw response counters to a round result.
// Zero durations (cache hits, instant prompts) yield zero rates rather
// than Inf.
func roundFromMetrics(round int, m ollama.Metrics) RoundResult {
	r := RoundResult{
		Round:        round,
		PromptTokens: m.PromptTokens,
		OutputTokens: m.OutputTokens,
		TotalMillis:  m.TotalDuration.Milliseconds(),
	}
	if s := m.PromptDuration.Seconds(); s > 0 {
		r.PromptTPS = float64(m.PromptTokens) / s
	}
	if s := m.EvalDuration.Seconds(); s > 0 {
		r.EvalTPS = float64(m.OutputTokens) / s
	}
	return r
}

func (r *Report) TotalOutputTokens() int {
	total := 0
	for _, round := range r.Rounds {
		total += round.OutputTokens
	}
	return total
}

// AvgEvalTPS averages generation speed over rounds that produced output.
func (r *Report) AvgEvalTPS() float64 {
	var sum float64
	var n int
	for _, round := range r.Rounds {
		if round.EvalTPS > 0 {
			sum += round.EvalTPS
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// WriteJSON exports the report for external analysis.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// RenderTable formats the report as a plain-text table for the terminal.
func (r *Report) RenderTable() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Benchmark %s — model %s, mode %s\n\n", r.ID, r.Model, r.Mode)
	fmt.Fprintf(&b, "%5s  %12s  %12s  %10s  %10s  %9s\n",
		"round", "prompt tok", "output tok", "prompt t/s", "eval t/s", "total ms")
	for _, round := range r.Rounds {
		fmt.Fprintf(&b, "%5d  %12d  %12d  %10.1f  %10.1f  %9d\n",
			round.Round, round.PromptTokens, round.OutputTokens,
			round.PromptTPS, round.EvalTPS, round.TotalMillis)
	}
	fmt.Fprintf(&b, "\navg eval: %.1f t/s over %d output tokens\n",
		r.AvgEvalTPS(), r.TotalOutputTokens())
	return b.String()
}
