package bench

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ocode/ollama"
)

func TestRoundFromMetrics(t *testing.T) {
	m := ollama.Metrics{
		PromptTokens:   500,
		OutputTokens:   120,
		PromptDuration: 250 * time.Millisecond,
		EvalDuration:   3 * time.Second,
		TotalDuration:  3500 * time.Millisecond,
	}

	r := roundFromMetrics(1, m)
	if math.Abs(r.PromptTPS-2000) > 0.01 {
		t.Errorf("PromptTPS = %f, want 2000", r.PromptTPS)
	}
	if math.Abs(r.EvalTPS-40) > 0.01 {
		t.Errorf("EvalTPS = %f, want 40", r.EvalTPS)
	}
	if r.TotalMillis != 3500 {
		t.Errorf("TotalMillis = %d", r.TotalMillis)
	}
}

func TestRoundFromMetricsZeroDurations(t *testing.T) {
	r := roundFromMetrics(1, ollama.Metrics{PromptTokens: 10, OutputTokens: 5})
	if r.PromptTPS != 0 || r.EvalTPS != 0 {
		t.Errorf("zero durations must not divide: %+v", r)
	}
}

func TestReportAggregates(t *testing.T) {
	r := &Report{Rounds: []RoundResult{
		{OutputTokens: 100, EvalTPS: 40},
		{OutputTokens: 50, EvalTPS: 20},
		{OutputTokens: 0, EvalTPS: 0}, // failed to generate, excluded from avg
	}}
	if got := r.TotalOutputTokens(); got != 150 {
		t.Errorf("TotalOutputTokens = %d", got)
	}
	if got := r.AvgEvalTPS(); math.Abs(got-30) > 0.01 {
		t.Errorf("AvgEvalTPS = %f, want 30", got)
	}
}

func TestAvgEvalTPSEmpty(t *testing.T) {
	if got := (&Report{}).AvgEvalTPS(); got != 0 {
		t.Errorf("AvgEvalTPS = %f", got)
	}
}

func TestWriteJSON(t *testing.T) {
	report := &Report{
		ID:        "run-1",
		Model:     "qwen3-coder:30b",
		Mode:      ModeSustained,
		StartedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Rounds:    []RoundResult{{Round: 1, OutputTokens: 10, EvalTPS: 33.3}},
	}

	path := filepath.Join(t.TempDir(), "report.json")
	if err := report.WriteJSON(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got Report
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != report.ID || len(got.Rounds) != 1 || got.Rounds[0].EvalTPS != 33.3 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestRenderTable(t *testing.T) {
	report := &Report{
		ID:    "run-2",
		Model: "llama3.2",
		Mode:  ModeContextGrowth,
		Rounds: []RoundResult{
			{Round: 1, PromptTokens: 100, OutputTokens: 50, PromptTPS: 1000, EvalTPS: 25, TotalMillis: 2100},
		},
	}

	table := report.RenderTable()
	for _, want := range []string{"llama3.2", ModeContextGrowth, "eval t/s", "25.0", "2100"} {
		if !strings.Contains(table, want) {
			t.Errorf("table missing %q:\n%s", want, table)
		}
	}
}
