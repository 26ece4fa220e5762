package config

func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Ollama: OllamaConfig{
			Host:         "http://localhost:11434",
			DefaultModel: "qwen3-coder:30b",
		},
		Memory: MemoryConfig{
			MaxContextTokens: 8192,
			CompactMode:      true,
		},
	}
}

func GenerateConfigTemplate() string {
	return `# ocode Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Directory the coding tools operate in (default: current directory)
# workspace = "~/projects/myapp"

[ollama]
# Ollama server URL
host = "http://localhost:11434"

# Default model for new sessions
default_model = "qwen3-coder:30b"

[memory]
# Estimated token budget before conversation history is compacted
max_context_tokens = 8192

# Summarize older turns when the budget is exceeded
compact_mode = true

[telegram]
# Bot token from @BotFather (required for telegram mode)
# bot_token = ""

# Telegram user IDs allowed to talk to the bot (empty = allow all)
# allowed_users = [123456789]
`
}
