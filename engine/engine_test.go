package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ollama/ollama/api"

	"ocode/config"
	"ocode/ollama"
	"ocode/tools"
)

// fakeBackend replays canned replies and records the history it was
// handed on each call. The last reply repeats once the script runs out.
type fakeBackend struct {
	replies []string
	err     error
	calls   int
	seen    [][]api.Message
}

func (f *fakeBackend) reply() string {
	i := f.calls
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	f.calls++
	return f.replies[i]
}

func (f *fakeBackend) Chat(_ context.Context, messages []api.Message) (string, ollama.Metrics, error) {
	f.seen = append(f.seen, append([]api.Message(nil), messages...))
	if f.err != nil {
		return "", ollama.Metrics{}, f.err
	}
	return f.reply(), ollama.Metrics{}, nil
}

func (f *fakeBackend) ChatStream(ctx context.Context, messages []api.Message, fn func(string) error) error {
	f.seen = append(f.seen, append([]api.Message(nil), messages...))
	if f.err != nil {
		return f.err
	}
	reply := f.reply()
	// Two chunks so consumers see incremental delivery.
	mid := len(reply) / 2
	for _, chunk := range []string{reply[:mid], reply[mid:]} {
		if chunk == "" {
			continue
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

func newTestEngine(t *testing.T, backend Backend) (*Engine, *tools.Executor) {
	t.Helper()
	exec, err := tools.NewExecutor(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{MaxContextTokens: 32768, CompactMode: true}
	return New(backend, exec, cfg), exec
}

func toolBlock(body string) string {
	return "```tool\n" + body + "\n```"
}

func TestRespondPlainReply(t *testing.T) {
	backend := &fakeBackend{replies: []string{"Hello there."}}
	e, _ := newTestEngine(t, backend)

	got, err := e.Respond(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello there." {
		t.Errorf("got %q", got)
	}
	if backend.calls != 1 {
		t.Errorf("backend called %d times", backend.calls)
	}
	// system + user + assistant
	if e.MessageCount() != 3 {
		t.Errorf("history has %d messages", e.MessageCount())
	}
}

func TestRespondToolLoop(t *testing.T) {
	backend := &fakeBackend{replies: []string{
		"Let me check.\n" + toolBlock(`{"tool": "read_file", "path": "notes.txt"}`),
		"The file says hello.",
	}}
	e, exec := newTestEngine(t, backend)

	if err := os.WriteFile(filepath.Join(exec.Root(), "notes.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := e.Respond(context.Background(), "what's in notes.txt?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "The file says hello." {
		t.Errorf("got %q", got)
	}
	if backend.calls != 2 {
		t.Fatalf("backend called %d times, want 2", backend.calls)
	}

	// The second call must carry the tool results as a user message.
	second := backend.seen[1]
	followUp := second[len(second)-1]
	if followUp.Role != "user" {
		t.Fatalf("follow-up role = %q", followUp.Role)
	}
	if !strings.HasPrefix(followUp.Content, "[Tool execution results]") {
		t.Errorf("follow-up missing header:\n%s", followUp.Content)
	}
	if !strings.Contains(followUp.Content, "**[read_file result]**") {
		t.Errorf("follow-up missing per-tool label:\n%s", followUp.Content)
	}
	if !strings.Contains(followUp.Content, "hello") {
		t.Errorf("follow-up missing tool output:\n%s", followUp.Content)
	}
	if !strings.Contains(followUp.Content, "Please respond to the user based on the above results.") {
		t.Errorf("follow-up missing summarize instruction:\n%s", followUp.Content)
	}
}

func TestRespondToolErrorAsksForFix(t *testing.T) {
	backend := &fakeBackend{replies: []string{
		toolBlock(`{"tool": "read_file", "path": "missing.txt"}`),
		"That file doesn't exist.",
	}}
	e, _ := newTestEngine(t, backend)

	if _, err := e.Respond(context.Background(), "read missing.txt"); err != nil {
		t.Fatal(err)
	}

	second := backend.seen[1]
	followUp := second[len(second)-1].Content
	if !strings.Contains(followUp, "❌") {
		t.Errorf("follow-up missing failure marker:\n%s", followUp)
	}
	if !strings.Contains(followUp, "Some tools returned errors") {
		t.Errorf("follow-up missing retry instruction:\n%s", followUp)
	}
}

func TestRespondMultipleToolsJoined(t *testing.T) {
	backend := &fakeBackend{replies: []string{
		toolBlock(`{"tool": "read_file", "path": "a.txt"}`) + "\n" +
			toolBlock(`{"tool": "read_file", "path": "b.txt"}`),
		"Both read.",
	}}
	e, exec := newTestEngine(t, backend)

	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(exec.Root(), name), []byte(name+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := e.Respond(context.Background(), "read both"); err != nil {
		t.Fatal(err)
	}

	second := backend.seen[1]
	followUp := second[len(second)-1].Content
	if !strings.Contains(followUp, "\n\n---\n\n") {
		t.Errorf("results not separated:\n%s", followUp)
	}
	// Every result carries its tool label so the model can map results
	// back to calls.
	if strings.Count(followUp, "**[read_file result]**") != 2 {
		t.Errorf("expected a label per result:\n%s", followUp)
	}
	if strings.Index(followUp, "a.txt") > strings.Index(followUp, "b.txt") {
		t.Errorf("results out of document order:\n%s", followUp)
	}
}

func TestRespondIterationCap(t *testing.T) {
	loop := toolBlock(`{"tool": "list_directory", "path": "."}`)
	backend := &fakeBackend{replies: []string{loop}}
	e, _ := newTestEngine(t, backend)

	got, err := e.Respond(context.Background(), "loop forever")
	if err != nil {
		t.Fatal(err)
	}
	if backend.calls != MaxToolIterations {
		t.Errorf("backend called %d times, want %d", backend.calls, MaxToolIterations)
	}
	// Cap exhaustion returns the last assistant text rather than failing.
	if got != loop {
		t.Errorf("got %q", got)
	}
}

func TestRespondBackendErrorKeepsUserMessage(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	e, _ := newTestEngine(t, backend)

	_, err := e.Respond(context.Background(), "hi")
	if err == nil {
		t.Fatal("want error")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("cause not wrapped: %v", err)
	}

	// The turn stays in history so a retry resends it.
	last := e.history[len(e.history)-1]
	if last.Role != "user" || last.Content != "hi" {
		t.Errorf("history tail = %+v", last)
	}
}

func TestStreamDeliversChunksAndCloses(t *testing.T) {
	backend := &fakeBackend{replies: []string{"streamed answer"}}
	e, _ := newTestEngine(t, backend)

	var got strings.Builder
	events := 0
	for ev := range e.Stream(context.Background(), "hi") {
		if ev.Err != nil {
			t.Fatal(ev.Err)
		}
		got.WriteString(ev.Content)
		events++
	}
	if got.String() != "streamed answer" {
		t.Errorf("got %q", got.String())
	}
	if events < 2 {
		t.Errorf("want incremental chunks, got %d event(s)", events)
	}
	last := e.history[len(e.history)-1]
	if last.Role != "assistant" || last.Content != "streamed answer" {
		t.Errorf("history tail = %+v", last)
	}
}

func TestStreamCancelKeepsPartialContent(t *testing.T) {
	backend := &fakeBackend{replies: []string{"first half|second half"}}
	e, _ := newTestEngine(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	ch := e.Stream(ctx, "hi")

	// Take one chunk, then walk away.
	first := <-ch
	if first.Err != nil {
		t.Fatal(first.Err)
	}
	cancel()
	// Let the producer observe cancellation before we drain; otherwise
	// our own receive keeps the channel send ready.
	time.Sleep(50 * time.Millisecond)
	var terminal error
	for ev := range ch {
		if ev.Err != nil {
			terminal = ev.Err
		}
	}
	if terminal == nil {
		t.Fatal("want terminal error event after cancel")
	}
	if !errors.Is(terminal, context.Canceled) {
		t.Errorf("terminal error = %v", terminal)
	}

	// The partial reply is recorded; no dangling unanswered user message.
	last := e.history[len(e.history)-1]
	if last.Role != "assistant" {
		t.Fatalf("history tail role = %q", last.Role)
	}
	if !strings.Contains(last.Content, first.Content) {
		t.Errorf("partial content %q not kept in %q", first.Content, last.Content)
	}
}

func TestStreamBackendError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("model not found")}
	e, _ := newTestEngine(t, backend)

	var terminal error
	for ev := range e.Stream(context.Background(), "hi") {
		terminal = ev.Err
	}
	if terminal == nil || !strings.Contains(terminal.Error(), "model not found") {
		t.Errorf("terminal = %v", terminal)
	}
}

func TestClearResetsHistory(t *testing.T) {
	backend := &fakeBackend{replies: []string{"ok"}}
	e, _ := newTestEngine(t, backend)

	if _, err := e.Respond(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	e.Clear()
	if e.MessageCount() != 1 {
		t.Errorf("history has %d messages after clear", e.MessageCount())
	}
	if e.history[0].Role != "system" {
		t.Errorf("history[0].Role = %q", e.history[0].Role)
	}
}

func TestProjectMemoryLoadedIntoSystemPrompt(t *testing.T) {
	backend := &fakeBackend{replies: []string{"ok"}}
	exec, err := tools.NewExecutor(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	rules := "Always use tabs.\n"
	if err := os.WriteFile(filepath.Join(exec.Root(), "OCODE.md"), []byte(rules), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{MaxContextTokens: 32768, CompactMode: true}
	e := New(backend, exec, cfg)

	if !e.HasProjectMemory() {
		t.Error("project memory not detected")
	}
	if !strings.Contains(e.history[0].Content, "Always use tabs.") {
		t.Error("system prompt missing project memory content")
	}
	if !strings.Contains(e.history[0].Content, "Project Context") {
		t.Error("system prompt missing project context heading")
	}
}
