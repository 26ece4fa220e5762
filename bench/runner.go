package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"

	"ocode/config"
	"ocode/ollama"
)

const (
	// ModeContextGrowth carries the conversation forward each round, so
	// prompt processing cost grows with history.
	ModeContextGrowth = "context-growth"
	// ModeSustained sends each prompt against a fresh history,
	// measuring steady-state generation speed.
	ModeSustained = "sustained"
)

const benchSeed = 42

const systemPrompt = "You are a concise assistant. Answer in a short paragraph."

// benchPrompts is the fixed prompt sequence; rounds beyond its length
// cycle. Determinism comes from the fixed seed and zero temperature.
var benchPrompts = []string{
	"Explain the difference between a slice and an array in Go.",
	"Write a function that reverses a string, then explain its complexity.",
	"Summarize how a hash map handles collisions.",
	"Describe what happens during a TCP three-way handshake.",
	"Explain goroutines versus operating system threads.",
}

type Runner struct {
	client *ollama.Client
	mode   string
	rounds int
}

func NewRunner(client *ollama.Client, mode string, rounds int) (*Runner, error) {
	switch mode {
	case ModeContextGrowth, ModeSustained:
	default:
		return nil, fmt.Errorf("unknown benchmark mode %q", mode)
	}
	if rounds < 1 {
		return nil, fmt.Errorf("rounds must be positive, got %d", rounds)
	}

	seed := benchSeed
	client.SetOptions(ollama.Options{Temperature: 0, Seed: &seed})

	return &Runner{client: client, mode: mode, rounds: rounds}, nil
}

// Run executes the configured rounds and returns the report. A failed
// round aborts the run; partial results are not reported.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		ID:        uuid.NewString(),
		Model:     r.client.GetModel(),
		Mode:      r.mode,
		StartedAt: time.Now(),
	}

	history := []api.Message{{Role: "system", Content: systemPrompt}}

	for i := 0; i < r.rounds; i++ {
		prompt := benchPrompts[i%len(benchPrompts)]

		var messages []api.Message
		if r.mode == ModeContextGrowth {
			history = append(history, api.Message{Role: "user", Content: prompt})
			messages = history
		} else {
			messages = []api.Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: prompt},
			}
		}

		reply, metrics, err := r.client.Chat(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("round %d failed: %w", i+1, err)
		}
		if r.mode == ModeContextGrowth {
			history = append(history, api.Message{Role: "assistant", Content: reply})
		}

		round := roundFromMetrics(i+1, metrics)
		report.Rounds = append(report.Rounds, round)
		if config.Debug {
			config.DebugLog.Printf("bench round %d: %d tokens at %.1f t/s",
				round.Round, round.OutputTokens, round.EvalTPS)
		}
	}

	return report, nil
}
