package bench

import (
	"testing"
	"time"
)

func testReport(id string, started time.Time) *Report {
	return &Report{
		ID:        id,
		Model:     "qwen3-coder:30b",
		Mode:      ModeSustained,
		StartedAt: started,
		Rounds: []RoundResult{
			{Round: 1, PromptTokens: 100, OutputTokens: 80, EvalTPS: 40, TotalMillis: 2000},
			{Round: 2, PromptTokens: 100, OutputTokens: 60, EvalTPS: 30, TotalMillis: 2000},
		},
	}
}

func TestStoreSaveAndList(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if err := store.Save(testReport("run-a", base)); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(testReport("run-b", base.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	runs, err := store.List(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs", len(runs))
	}
	// Newest first.
	if runs[0].ID != "run-b" || runs[1].ID != "run-a" {
		t.Errorf("order wrong: %s, %s", runs[0].ID, runs[1].ID)
	}
	if runs[0].Rounds != 2 || runs[0].OutputTokens != 140 {
		t.Errorf("summary columns wrong: %+v", runs[0])
	}
}

func TestStoreGet(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	want := testReport("run-c", time.Now().UTC())
	if err := store.Save(want); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get("run-c")
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != want.Model || len(got.Rounds) != 2 {
		t.Errorf("loaded report mismatch: %+v", got)
	}

	if _, err := store.Get("nope"); err == nil {
		t.Error("want error for missing run")
	}
}
