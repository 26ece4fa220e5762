package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ocode/bench"
	"ocode/config"
	"ocode/engine"
	"ocode/ollama"
	"ocode/session"
	"ocode/telegram"
	"ocode/tools"
	"ocode/ui"
)

const Version = "v0.1.0"

func main() {
	var (
		mode      = flag.String("mode", "cli", "run mode: cli, telegram, or bench")
		model     = flag.String("model", "", "override the configured model")
		workspace = flag.String("workspace", "", "override the workspace directory")

		benchMode   = flag.String("bench-mode", bench.ModeSustained, "benchmark mode: sustained or context-growth")
		benchRounds = flag.Int("rounds", 5, "benchmark rounds")
		benchJSON   = flag.String("json", "", "write the benchmark report to this file")
		benchList   = flag.Bool("list", false, "list saved benchmark runs and exit")
		version     = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("ocode", Version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *workspace != "" {
		cfg.WorkspaceDir = *workspace
	}

	config.InitDebugLog(config.GetDataDir())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "cli":
		err = runCLI(ctx, cfg)
	case "telegram":
		err = runTelegram(ctx, cfg)
	case "bench":
		err = runBench(ctx, cfg, *benchMode, *benchRounds, *benchJSON, *benchList)
	default:
		fail("Unknown mode %q (want cli, telegram, or bench)", *mode)
	}
	if err != nil && ctx.Err() == nil {
		fail("%v", err)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// newBackend builds a pinged client; a dead Ollama fails fast with the
// host in the message.
func newBackend(ctx context.Context, cfg *config.Config) (*ollama.Client, error) {
	client, err := ollama.NewClient(cfg.OllamaHost, cfg.Model)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("cannot reach Ollama at %s: %w", cfg.OllamaHost, err)
	}
	return client, nil
}

func runCLI(ctx context.Context, cfg *config.Config) error {
	client, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	executor, err := tools.NewExecutor(cfg.WorkspaceDir)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}

	eng := engine.New(client, executor, cfg)
	shell := ui.NewShell(eng, client, cfg)
	executor.SetApprover(shell)

	return shell.Run(ctx)
}

func runTelegram(ctx context.Context, cfg *config.Config) error {
	if cfg.TelegramToken == "" {
		return fmt.Errorf("no Telegram bot token configured (set [telegram] bot_token or OCODE_TELEGRAM_BOT_TOKEN)")
	}
	client, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	executor, err := tools.NewExecutor(cfg.WorkspaceDir)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}

	// No interactive prompt on this transport; gated tools run
	// auto-approved inside the sandbox.
	executor.SetApprover(tools.AutoApprover{})

	store := session.NewStore(func(int64) *engine.Engine {
		return engine.New(client, executor, cfg)
	})

	bot, err := telegram.NewBot(cfg, store)
	if err != nil {
		return err
	}
	fmt.Println("Telegram bot running. Ctrl-C to stop.")
	return bot.Run(ctx)
}

func runBench(ctx context.Context, cfg *config.Config, mode string, rounds int, jsonPath string, list bool) error {
	store, err := bench.NewStore(config.GetDataDir())
	if err != nil {
		return err
	}
	defer store.Close()

	if list {
		runs, err := store.List(20)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No saved runs.")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %s  %-14s  %2d rounds  %6.1f t/s  %s\n",
				r.StartedAt.Format("2006-01-02 15:04"), r.Model, r.Mode,
				r.Rounds, r.AvgEvalTPS, r.ID)
		}
		return nil
	}

	client, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	runner, err := bench.NewRunner(client, mode, rounds)
	if err != nil {
		return err
	}

	fmt.Printf("Benchmarking %s (%s, %d rounds)...\n", cfg.Model, mode, rounds)
	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(report.RenderTable())
	if err := store.Save(report); err != nil {
		return fmt.Errorf("saving run history: %w", err)
	}
	if jsonPath != "" {
		if err := report.WriteJSON(jsonPath); err != nil {
			return err
		}
		fmt.Println("Report written to", jsonPath)
	}
	return nil
}
