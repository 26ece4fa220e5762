package ui

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ollama/ollama/api"

	"ocode/config"
	"ocode/engine"
	"ocode/ollama"
	"ocode/tools"
)

type scriptedBackend struct{ reply string }

func (s scriptedBackend) Chat(context.Context, []api.Message) (string, ollama.Metrics, error) {
	return s.reply, ollama.Metrics{}, nil
}

func (s scriptedBackend) ChatStream(_ context.Context, _ []api.Message, fn func(string) error) error {
	mid := len(s.reply) / 2
	for _, chunk := range []string{s.reply[:mid], s.reply[mid:]} {
		if chunk == "" {
			continue
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

func newTestShell(t *testing.T, backend engine.Backend, input string) (*Shell, *bytes.Buffer) {
	t.Helper()
	exec, err := tools.NewExecutor(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{MaxContextTokens: 32768, CompactMode: true, WorkspaceDir: exec.Root()}

	var out bytes.Buffer
	s := &Shell{
		engine: engine.New(backend, exec, cfg),
		cfg:    cfg,
		in:     bufio.NewReader(strings.NewReader(input)),
		out:    &out,
	}
	return s, &out
}

func TestRespondEchoesChunksAndRendersReply(t *testing.T) {
	s, out := newTestShell(t, scriptedBackend{reply: "the **styled** answer"}, "")

	s.respond(context.Background(), "hi")

	// Streamed chunks echo as assistant text, then the rendered panel
	// repeats the reply.
	if got := out.String(); !strings.Contains(got, "styled") {
		t.Errorf("assistant content missing from output:\n%s", got)
	}
	if s.lastReply != "the **styled** answer" {
		t.Errorf("lastReply = %q", s.lastReply)
	}
}

func TestApproveAnswers(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"n\n", false},
		{"\n", false},
		{"whatever\n", false},
	}
	for _, tt := range tests {
		s, _ := newTestShell(t, scriptedBackend{}, tt.input)
		if got := s.Approve("write_file", "desc"); got != tt.want {
			t.Errorf("Approve with input %q = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestApproveAllEnablesAutoApproval(t *testing.T) {
	s, _ := newTestShell(t, scriptedBackend{}, "a\n")

	if !s.Approve("run_command", "desc") {
		t.Fatal("'a' should approve")
	}
	// No further input available; auto-approval must answer by itself.
	if !s.Approve("run_command", "desc") {
		t.Error("auto-approval not sticky")
	}
}
