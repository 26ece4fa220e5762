package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type OllamaConfig struct {
	Host         string `toml:"host"`
	DefaultModel string `toml:"default_model"`
}

type TelegramConfig struct {
	BotToken     string  `toml:"bot_token,omitempty"`
	AllowedUsers []int64 `toml:"allowed_users,omitempty"`
}

type MemoryConfig struct {
	MaxContextTokens int  `toml:"max_context_tokens"`
	CompactMode      bool `toml:"compact_mode"`
}

type FileConfig struct {
	Ollama    OllamaConfig   `toml:"ollama"`
	Telegram  TelegramConfig `toml:"telegram"`
	Memory    MemoryConfig   `toml:"memory"`
	Workspace string         `toml:"workspace,omitempty"`
}

// Config is the resolved runtime configuration: file values with
// OCODE_* environment overrides applied on top.
type Config struct {
	OllamaHost       string
	Model            string
	WorkspaceDir     string
	MaxContextTokens int
	CompactMode      bool
	TelegramToken    string
	TelegramAllowed  []int64
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("OCODE_OLLAMA_HOST"); host != "" {
		c.OllamaHost = host
	}
	if model := os.Getenv("OCODE_OLLAMA_MODEL"); model != "" {
		c.Model = model
	}
	if ws := os.Getenv("OCODE_WORKSPACE"); ws != "" {
		c.WorkspaceDir = ws
	}
	if tok := os.Getenv("OCODE_TELEGRAM_BOT_TOKEN"); tok != "" {
		c.TelegramToken = tok
	}
	if users := os.Getenv("OCODE_TELEGRAM_ALLOWED_USERS"); users != "" {
		c.TelegramAllowed = parseAllowedUsers(users)
	}
	if max := os.Getenv("OCODE_MAX_CONTEXT_TOKENS"); max != "" {
		if n, err := strconv.Atoi(max); err == nil && n > 0 {
			c.MaxContextTokens = n
		}
	}
	if compact := os.Getenv("OCODE_COMPACT_MODE"); compact != "" {
		c.CompactMode = compact == "true" || compact == "1" || compact == "yes"
	}
}

func parseAllowedUsers(s string) []int64 {
	var users []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		users = append(users, id)
	}
	return users
}

func CheckDebug() bool {
	debug := os.Getenv("OCODE_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	logPath := filepath.Join(dataDir, "debug.log")

	// 0600 - debug output may contain conversation fragments
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	Debug = true
	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (OCODE_DEBUG=%s) ===", os.Getenv("OCODE_DEBUG"))
}

// Load reads config.toml from the data directory (creating a default
// template on first run), applies env overrides, and resolves the
// workspace directory to an absolute path.
func Load() (*Config, error) {
	cfg := &Config{
		OllamaHost:       "http://localhost:11434",
		Model:            "qwen3-coder:30b",
		WorkspaceDir:     ".",
		MaxContextTokens: 8192,
		CompactMode:      true,
	}

	dataDir := GetDataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	configPath := filepath.Join(dataDir, "config.toml")
	if FileExists(configPath) {
		fileCfg, err := loadFileConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg.applyFileConfig(fileCfg)
	} else {
		if err := writeDefaultConfig(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	ws, err := filepath.Abs(ExpandPath(cfg.WorkspaceDir))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}
	cfg.WorkspaceDir = ws

	return cfg, nil
}

func (c *Config) applyFileConfig(fc *FileConfig) {
	if fc.Ollama.Host != "" {
		c.OllamaHost = fc.Ollama.Host
	}
	if fc.Ollama.DefaultModel != "" {
		c.Model = fc.Ollama.DefaultModel
	}
	if fc.Workspace != "" {
		c.WorkspaceDir = fc.Workspace
	}
	if fc.Memory.MaxContextTokens > 0 {
		c.MaxContextTokens = fc.Memory.MaxContextTokens
	}
	c.CompactMode = fc.Memory.CompactMode
	if fc.Telegram.BotToken != "" {
		c.TelegramToken = fc.Telegram.BotToken
	}
	if len(fc.Telegram.AllowedUsers) > 0 {
		c.TelegramAllowed = fc.Telegram.AllowedUsers
	}
}

func loadFileConfig(path string) (*FileConfig, error) {
	cfg := DefaultFileConfig()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func writeDefaultConfig(path string) error {
	// 0600 - may hold the Telegram bot token
	return os.WriteFile(path, []byte(GenerateConfigTemplate()), 0600)
}
