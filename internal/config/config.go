// Package config loads and watches the majordomo YAML configuration.
// Values resolve in order: explicit YAML, environment variable, default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultCore         = "You are a helpful assistant."
)

// ProviderConfig configures the OpenAI-compatible model endpoint.
type ProviderConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"`
	MaxRetries  int     `yaml:"max_retries"`
}

// AgentConfig bounds the cycle engine.
type AgentConfig struct {
	MaxCycles          int    `yaml:"max_cycles"`
	ToolConcurrency    int    `yaml:"tool_concurrency"`
	ToolTimeoutSec     int    `yaml:"tool_timeout_sec"`
	ApprovalTimeoutSec int    `yaml:"approval_timeout_sec"`
	SystemPromptFile   string `yaml:"system_prompt_file"`
	CoreFile           string `yaml:"core_file"`
	UserName           string `yaml:"user_name"`
}

// GatewayConfig configures the WebSocket gateway.
type GatewayConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Token        string `yaml:"token"`
	RatePerSec   int    `yaml:"rate_per_sec"`
	RateBurst    int    `yaml:"rate_burst"`
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	OwnerID string `yaml:"owner_id"`
}

// HeartbeatConfig configures the periodic self-check loop.
type HeartbeatConfig struct {
	Enabled     bool   `yaml:"enabled"`
	IntervalMin int    `yaml:"interval_min"`
	PromptFile  string `yaml:"prompt_file"`
	ActiveStart string `yaml:"active_start"` // "HH:MM", empty = always
	ActiveEnd   string `yaml:"active_end"`
	Timezone    string `yaml:"timezone"`
	Channel     string `yaml:"channel"`
	To          string `yaml:"to"`
}

// MCPServerConfig describes one MCP server launched over stdio.
type MCPServerConfig struct {
	Name       string   `yaml:"name"`
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
	Env        []string `yaml:"env"`
	Prefix     string   `yaml:"prefix"`      // tool name prefix, avoids collisions
	TimeoutSec int      `yaml:"timeout_sec"` // per tool call
	Sensitive  bool     `yaml:"sensitive"`   // gate every tool on approval
}

// ToolsConfig configures builtin tool behavior.
type ToolsConfig struct {
	ExecTimeoutSec  int      `yaml:"exec_timeout_sec"`
	MaxPerHour      int      `yaml:"max_per_hour"`
	SMTPHost        string   `yaml:"smtp_host"`
	SMTPPort        int      `yaml:"smtp_port"`
	SMTPUser        string   `yaml:"smtp_user"`
	SMTPPassword    string   `yaml:"smtp_password"`
	IMAPHost        string   `yaml:"imap_host"`
	IMAPPort        int      `yaml:"imap_port"`
	IMAPUser        string   `yaml:"imap_user"`
	IMAPPassword    string   `yaml:"imap_password"`
	SearchEndpoint  string   `yaml:"search_endpoint"`
	SearchAPIKey    string   `yaml:"search_api_key"`
	AllowedCommands []string `yaml:"allowed_commands"`
}

// Config is the root configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Agent     AgentConfig     `yaml:"agent"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Discord   DiscordConfig   `yaml:"discord"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Tools     ToolsConfig     `yaml:"tools"`

	MCPServers []MCPServerConfig `yaml:"mcp_servers"`

	DataDir   string `yaml:"data_dir"`   // sessions, cron store, memory db
	SkillsDir string `yaml:"skills_dir"` // SKILL.md directories
}

// Load reads the config file, applies env fallbacks and defaults.
// A missing file is not an error: env + defaults still produce a usable config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env + defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MAJORDOMO_ENDPOINT"); v != "" && c.Provider.Endpoint == "" {
		c.Provider.Endpoint = v
	}
	if v := os.Getenv("MAJORDOMO_API_KEY"); v != "" && c.Provider.APIKey == "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("MAJORDOMO_MODEL"); v != "" && c.Provider.Model == "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("MAJORDOMO_DATA_DIR"); v != "" && c.DataDir == "" {
		c.DataDir = v
	}
	if v := os.Getenv("MAJORDOMO_SKILLS_DIR"); v != "" && c.SkillsDir == "" {
		c.SkillsDir = v
	}
	if v := os.Getenv("DISCORD_TOKEN"); v != "" && c.Discord.Token == "" {
		c.Discord.Token = v
	}
}

func (c *Config) applyDefaults() {
	if c.Provider.Endpoint == "" {
		c.Provider.Endpoint = "http://127.0.0.1:8080/v1"
	}
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = "none"
	}
	if c.Provider.Model == "" {
		c.Provider.Model = "qwen3-next-80b-instruct"
	}
	if c.Provider.Temperature == 0 {
		c.Provider.Temperature = 1.0
	}
	if c.Provider.TimeoutSec <= 0 {
		c.Provider.TimeoutSec = 120
	}
	if c.Provider.MaxRetries <= 0 {
		c.Provider.MaxRetries = 3
	}

	if c.Agent.MaxCycles <= 0 {
		c.Agent.MaxCycles = 50
	}
	if c.Agent.ToolConcurrency <= 0 {
		c.Agent.ToolConcurrency = 4
	}
	if c.Agent.ToolTimeoutSec <= 0 {
		c.Agent.ToolTimeoutSec = 120
	}
	if c.Agent.ApprovalTimeoutSec <= 0 {
		c.Agent.ApprovalTimeoutSec = 120
	}
	if c.Agent.SystemPromptFile == "" {
		c.Agent.SystemPromptFile = "SYSTEM.txt"
	}
	if c.Agent.CoreFile == "" {
		c.Agent.CoreFile = "CORE.txt"
	}
	if c.Agent.UserName == "" {
		c.Agent.UserName = "User"
	}

	if c.Gateway.Host == "" {
		c.Gateway.Host = "127.0.0.1"
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 4710
	}
	if c.Gateway.RatePerSec <= 0 {
		c.Gateway.RatePerSec = 10
	}
	if c.Gateway.RateBurst <= 0 {
		c.Gateway.RateBurst = 20
	}

	if c.Heartbeat.IntervalMin <= 0 {
		c.Heartbeat.IntervalMin = 30
	}
	if c.Heartbeat.PromptFile == "" {
		c.Heartbeat.PromptFile = "HEARTBEAT.md"
	}

	if c.Tools.ExecTimeoutSec <= 0 {
		c.Tools.ExecTimeoutSec = 20
	}
	if c.Tools.SMTPPort == 0 {
		c.Tools.SMTPPort = 587
	}
	if c.Tools.IMAPPort == 0 {
		c.Tools.IMAPPort = 993
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.DataDir = filepath.Join(home, ".majordomo")
	}
	if c.SkillsDir == "" {
		c.SkillsDir = "skills"
	}
}

// SessionsDir is where conversation records are persisted.
func (c *Config) SessionsDir() string { return filepath.Join(c.DataDir, "sessions") }

// CronStorePath is the cron job persistence file.
func (c *Config) CronStorePath() string { return filepath.Join(c.DataDir, "cron.json") }

// MemoryDBPath is the SQLite memory database.
func (c *Config) MemoryDBPath() string { return filepath.Join(c.DataDir, "memory.db") }

// ModelTimeout returns the provider request timeout as a duration.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSec) * time.Second
}

// SystemPrompt reads the system prompt file and expands template variables.
// Falls back to the default prompt when the file is missing.
func (c *Config) SystemPrompt() string {
	return c.renderPrompt(readFileOr(c.Agent.SystemPromptFile, DefaultSystemPrompt))
}

// Core reads the core document (persistent memories and traits).
func (c *Config) Core() string {
	return c.renderPrompt(readFileOr(c.Agent.CoreFile, DefaultCore))
}

func (c *Config) renderPrompt(p string) string {
	p = strings.ReplaceAll(p, "{{DATE}}", time.Now().Format("2006-01-02"))
	p = strings.ReplaceAll(p, "{{USER_NAME}}", c.Agent.UserName)
	p = strings.ReplaceAll(p, "{{CORE_PATH}}", c.Agent.CoreFile)
	return p
}

func readFileOr(path, fallback string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	return string(data)
}
