package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults (spec.md §6).
func Default() *Config {
	return &Config{
		Brain: LLMConfig{Provider: "anthropic", Model: "claude-sonnet-4-5-20250929"},
		Agent: LLMConfig{Provider: "anthropic", Model: "claude-haiku-4-5-20251001"},
		Messaging: MessagingConfig{
			DatabasePath:     "~/Library/Messages/chat.db",
			PollInterval:     2 * time.Second,
			RateLimit:        1,
			MaxMessageLength: 4000,
			ScriptBinary:     "osascript",
			MergeWindow:      3 * time.Second,
		},
		Safety: SafetyConfig{
			KillWords: []string{"stop", "kill", "abort", "cancel task"},
		},
		Engine: EngineConfig{
			LogLevel:         "info",
			MaxParallelTasks: 3,
			BrainMaxSteps:    25,
			KillGracePeriod:  5 * time.Second,
			WorkingDir:       "~/.tars/workspace",
		},
		Memory: MemoryConfig{
			BaseDir:           "~/.tars",
			MaxHistoryContext: 10,
		},
		IMessage: IMessageConfig{ProgressInterval: 30 * time.Second},
		Tools:    ToolsConfig{BrowserHeadless: true},
		SelfHeal: SelfHealConfig{SweepCron: "*/5 * * * *", RepairMaxSteps: 20, FingerprintSize: 50},
	}
}

// Load reads the JSON5 config document at path, overlaying secret
// environment variables afterward. A missing file is not an error: Default
// plus env overrides is a valid configuration (matching the teacher's
// cold-start behavior in config_load.go).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays secrets and operator overrides from the
// environment. Env vars always win over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("TARS_BRAIN_API_KEY", &c.Brain.APIKey)
	envStr("TARS_AGENT_API_KEY", &c.Agent.APIKey)
	envStr("TARS_BRAIN_PROVIDER", &c.Brain.Provider)
	envStr("TARS_BRAIN_MODEL", &c.Brain.Model)
	envStr("TARS_AGENT_PROVIDER", &c.Agent.Provider)
	envStr("TARS_AGENT_MODEL", &c.Agent.Model)

	envStr("TARS_OWNER_ADDRESS", &c.Messaging.OwnerAddress)
	envStr("TARS_MESSAGE_DB", &c.Messaging.DatabasePath)

	envStr("TARS_RELAY_URL", &c.Relay.URL)
	envStr("TARS_RELAY_TOKEN", &c.Relay.Token)

	envStr("TARS_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("TARS_DATABASE_MODE", &c.Database.Mode)

	envStr("TARS_TELEGRAM_TOKEN", &c.Telegram.Token)
	if c.Telegram.Token != "" {
		c.Telegram.Enabled = true
	}

	envStr("TARS_WORKSPACE", &c.Engine.WorkingDir)
	envStr("TARS_MEMORY_DIR", &c.Memory.BaseDir)

	if v := os.Getenv("TARS_MAX_PARALLEL_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.MaxParallelTasks = n
		}
	}
	if v := os.Getenv("TARS_KILL_WORDS"); v != "" {
		c.Safety.KillWords = strings.Split(v, ",")
	}
	if v := os.Getenv("TARS_ALLOWED_PATHS"); v != "" {
		c.Safety.AllowedPaths = strings.Split(v, ",")
	}

	envStr("TARS_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	if v := os.Getenv("TARS_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
}

// IsManagedMode reports whether the Memory Store should persist to Postgres
// instead of flat category files.
func (c *Config) IsManagedMode() bool {
	c.RLock()
	defer c.RUnlock()
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
