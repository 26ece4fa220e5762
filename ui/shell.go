// Package ui is the line-oriented terminal shell: banner, slash commands,
// streamed responses, and the interactive tool-approval prompt.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"ocode/config"
	"ocode/engine"
	"ocode/ollama"
)

const helpText = `Commands:
  /help     show this help
  /clear    reset the conversation
  /model    show session stats; /model <name> switches model
  /approve  toggle auto-approval of file writes and commands
  /copy     copy the last response to the clipboard
  /quit     exit

Anything else is sent to the model.`

// Shell runs one interactive conversation on stdin/stdout.
type Shell struct {
	engine *engine.Engine
	client *ollama.Client
	cfg    *config.Config

	in  *bufio.Reader
	out io.Writer

	autoApprove bool
	lastReply   string
}

func NewShell(eng *engine.Engine, client *ollama.Client, cfg *config.Config) *Shell {
	return &Shell{
		engine: eng,
		client: client,
		cfg:    cfg,
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

// Approve asks the user about one gated tool call. Answering "a" turns
// auto-approval on for the rest of the session.
func (s *Shell) Approve(toolName, description string) bool {
	if s.autoApprove {
		return true
	}

	panel := TitleStyle.Render("Tool request: "+toolName) + "\n" + description
	fmt.Fprintln(s.out, ApprovalStyle.Render(panel))
	fmt.Fprint(s.out, WarnStyle.Render("Approve? [y/n/a] "))

	line, err := s.in.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "a":
		s.autoApprove = true
		fmt.Fprintln(s.out, DimStyle.Render("Auto-approval enabled for this session."))
		return true
	default:
		return false
	}
}

// Run loops over user input until /quit or EOF.
func (s *Shell) Run(ctx context.Context) error {
	s.printBanner()

	for {
		fmt.Fprint(s.out, PromptStyle.Render("❯ "))
		line, err := s.in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(s.out)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if quit := s.handleCommand(input); quit {
				return nil
			}
			continue
		}
		s.respond(ctx, input)
	}
}

// respond streams one turn, echoing chunks as they arrive, then prints
// the rendered markdown panel.
func (s *Shell) respond(ctx context.Context, input string) {
	var reply strings.Builder
	for ev := range s.engine.Stream(ctx, input) {
		if ev.Err != nil {
			fmt.Fprintln(s.out, ErrorStyle.Render("Error: ")+ev.Err.Error())
			return
		}
		fmt.Fprint(s.out, AssistantStyle.Render(ev.Content))
		reply.WriteString(ev.Content)
	}
	fmt.Fprintln(s.out)

	s.lastReply = reply.String()
	if s.lastReply != "" {
		fmt.Fprintln(s.out, RenderMarkdown(s.lastReply, defaultWidth))
	}
}

// handleCommand reports true when the shell should exit.
func (s *Shell) handleCommand(input string) bool {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		fmt.Fprintln(s.out, DimStyle.Render(helpText))
	case "/clear":
		s.engine.Clear()
		s.lastReply = ""
		fmt.Fprintln(s.out, DimStyle.Render("Conversation cleared."))
	case "/model":
		if arg != "" {
			s.client.SetModel(arg)
			fmt.Fprintln(s.out, DimStyle.Render("Model set to "+arg))
			break
		}
		s.printStats()
	case "/approve":
		s.autoApprove = !s.autoApprove
		if s.autoApprove {
			fmt.Fprintln(s.out, WarnStyle.Render("Auto-approval ON."))
		} else {
			fmt.Fprintln(s.out, DimStyle.Render("Auto-approval OFF."))
		}
	case "/copy":
		if s.lastReply == "" {
			fmt.Fprintln(s.out, DimStyle.Render("Nothing to copy yet."))
			break
		}
		if err := clipboard.WriteAll(s.lastReply); err != nil {
			fmt.Fprintln(s.out, ErrorStyle.Render("Clipboard: ")+err.Error())
			break
		}
		fmt.Fprintln(s.out, DimStyle.Render("Last response copied."))
	case "/quit", "/exit":
		return true
	default:
		fmt.Fprintln(s.out, DimStyle.Render("Unknown command. /help lists commands."))
	}
	return false
}

func (s *Shell) printBanner() {
	memory := "no"
	if s.engine.HasProjectMemory() {
		memory = "yes (OCODE.md)"
	}
	lines := []string{
		TitleStyle.Render("ocode"),
		"model:     " + s.client.GetModel(),
		"workspace: " + TruncateLine(s.cfg.WorkspaceDir, 60),
		"memory:    " + memory,
		"type /help for commands",
	}
	fmt.Fprintln(s.out, BannerStyle.Render(strings.Join(lines, "\n")))
}

func (s *Shell) printStats() {
	fmt.Fprintf(s.out, "model: %s\nmessages: %d\nestimated tokens: ~%d / %d\n",
		s.client.GetModel(),
		s.engine.MessageCount(),
		s.engine.EstimatedTokens(),
		s.cfg.MaxContextTokens)
	if config.Debug {
		config.DebugLog.Printf("session stats requested: %d messages", s.engine.MessageCount())
	}
}
