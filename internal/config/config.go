// Package config implements the single configuration document (spec.md
// §6): brain/agent LLM settings, messaging, safety, memory, relay, and the
// optional managed-database backend. Secrets (API keys, relay token,
// Postgres DSN) are never read from the file — only from environment
// variables, overlaid after load — mirroring the teacher's
// DatabaseConfig.PostgresDSN / TailscaleConfig.AuthKey pattern.
package config

import (
	"sync"
	"time"
)

// Config is the root configuration document for the TARS gateway.
type Config struct {
	Brain     LLMConfig       `json:"brain"`
	Agent     LLMConfig       `json:"agent"`
	Messaging MessagingConfig `json:"messaging"`
	Safety    SafetyConfig    `json:"safety"`
	Engine    EngineConfig    `json:"agent_engine"`
	Memory    MemoryConfig    `json:"memory"`
	Relay     RelayConfig     `json:"relay"`
	IMessage  IMessageConfig  `json:"imessage"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telegram  TelegramConfig  `json:"telegram,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Tools     ToolsConfig     `json:"tools,omitempty"`
	SelfHeal  SelfHealConfig  `json:"self_heal,omitempty"`

	mu sync.RWMutex
}

// LLMConfig names a provider/model pair for either the Brain or the
// specialist Agent Loop. APIKey is never populated from the file.
type LLMConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url,omitempty"`
	APIKey   string `json:"-"`
}

// MessagingConfig controls the Message Source Multiplexer and Sink.
type MessagingConfig struct {
	OwnerAddress      string        `json:"owner_address"`
	DatabasePath      string        `json:"database_path"`
	CLIFallbackBinary string        `json:"cli_fallback_binary,omitempty"`
	PollInterval      time.Duration `json:"poll_interval"`
	RateLimit         float64       `json:"rate_limit"` // messages/sec to the sink
	MaxMessageLength  int           `json:"max_message_length"`
	ScriptBinary      string        `json:"script_binary,omitempty"` // e.g. "osascript"
	MergeWindow       time.Duration `json:"merge_window"`            // Stream Parser window W
}

// SafetyConfig holds the Safety Gate's configurable policy surface.
type SafetyConfig struct {
	KillWords    []string `json:"kill_words"`
	AllowedPaths []string `json:"allowed_paths"`
}

// EngineConfig controls Agent Loop / Dispatcher runtime limits.
type EngineConfig struct {
	LogLevel         string        `json:"log_level"`
	LogFile          string        `json:"log_file,omitempty"`
	MaxParallelTasks int           `json:"max_parallel_tasks"`
	BrainMaxSteps    int           `json:"brain_max_steps"`
	KillGracePeriod  time.Duration `json:"kill_grace_period"`
	WorkingDir       string        `json:"working_dir"`
}

// MemoryConfig points at the Memory Store's on-disk layout.
type MemoryConfig struct {
	BaseDir           string `json:"base_dir"`
	MaxHistoryContext int    `json:"max_history_context"`
}

// RelayConfig configures the outbound tunnel connection to the cloud relay.
type RelayConfig struct {
	URL   string `json:"url,omitempty"`
	Token string `json:"-"`
}

// IMessageConfig controls the Dispatcher's Progress Collector cadence.
type IMessageConfig struct {
	ProgressInterval time.Duration `json:"progress_interval"`
}

// DatabaseConfig selects the optional managed Postgres-backed Memory Store.
// PostgresDSN is never read from the file — env only.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"` // "file" (default) or "managed"
	PostgresDSN string `json:"-"`
}

// TelegramConfig binds a Telegram bot in as a second dashboard-like push
// source alongside the in-process queue (SPEC_FULL §2).
type TelegramConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Token   string `json:"-"`
}

// TelemetryConfig configures the Event Bus's optional OTel tracing bridge.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// ToolsConfig carries per-tool knobs that don't belong under Safety.
type ToolsConfig struct {
	BrowserHeadless bool     `json:"browser_headless"`
	ScreenTargetApp string   `json:"screen_target_app,omitempty"`
	MCPServers      []string `json:"mcp_servers,omitempty"` // external MCP server endpoints to mount
}

// SelfHealConfig controls the Self-Heal Engine's sweep cadence and repair
// agent policy.
type SelfHealConfig struct {
	SweepCron       string `json:"sweep_cron,omitempty"` // cron expression, default every 5 minutes
	RepairMaxSteps  int    `json:"repair_max_steps,omitempty"`
	FingerprintSize int    `json:"fingerprint_window,omitempty"`
}

// Lock/Unlock give callers (e.g. the fsnotify reload path) explicit control
// when swapping fields in place rather than via atomic.Pointer replacement.
func (c *Config) Lock()    { c.mu.Lock() }
func (c *Config) Unlock()  { c.mu.Unlock() }
func (c *Config) RLock()   { c.mu.RLock() }
func (c *Config) RUnlock() { c.mu.RUnlock() }

// Clone returns a shallow copy of the data fields (no mutex), safe to hand
// to a new atomic.Pointer generation.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return &cp
}
