package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultProfile is the LLM profile every config carries.
const DefaultProfile = "default"

type Config struct {
	// LLM holds the named LLM profiles. It is filled from the [llm] table
	// by decodeProfiles, not by the generic decoder.
	LLM     map[string]LLMConfig `toml:"-"`
	Agent   AgentConfig          `toml:"agent"`
	Tools   ToolsConfig          `toml:"tools"`
	History HistoryConfig        `toml:"history"`
	Breaker BreakerConfig        `toml:"breaker"`
	Log     LogConfig            `toml:"log"`
	Trace   TraceConfig          `toml:"trace"`
}

// LLMConfig is one LLM backend profile. It only has scalar fields, so a
// plain copy never shares state with the original.
type LLMConfig struct {
	Model             string  `toml:"model"`
	BaseURL           string  `toml:"base_url"`
	APIKey            string  `toml:"api_key"`
	APIType           string  `toml:"api_type"`
	APIVersion        string  `toml:"api_version"`
	MaxTokens         int     `toml:"max_tokens"`
	Temperature       float64 `toml:"temperature"`
	RequestsPerMinute int     `toml:"requests_per_minute"`
}

// WithModel returns a copy of c with its model replaced.
func (c LLMConfig) WithModel(model string) LLMConfig {
	c.Model = model
	return c
}

type AgentConfig struct {
	MaxSteps           int    `toml:"max_steps"`
	SystemPrompt       string `toml:"system_prompt"`
	NextStepPrompt     string `toml:"next_step_prompt"`
	Workspace          string `toml:"workspace"`
	DuplicateThreshold int    `toml:"duplicate_threshold"`

	Compaction CompactionConfig `toml:"compaction"`
}

// CompactionConfig bounds the agent's working context. Once TurnThreshold
// steps have accumulated, all but the last KeepRecent are summarized.
// Zero TurnThreshold disables compaction.
type CompactionConfig struct {
	TurnThreshold int `toml:"turn_threshold"`
	KeepRecent    int `toml:"keep_recent"`
}

type ToolsConfig struct {
	Brave BraveConfig `toml:"brave"`
	Shell ShellConfig `toml:"shell"`
}

type BraveConfig struct {
	APIKey string `toml:"api_key"`
}

type ShellConfig struct {
	Timeout time.Duration `toml:"timeout"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type BreakerConfig struct {
	MaxFailures uint32        `toml:"max_failures"`
	Timeout     time.Duration `toml:"timeout"`
	Interval    time.Duration `toml:"interval"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type TraceConfig struct {
	Endpoint string `toml:"endpoint"`
	URLPath  string `toml:"url_path"`
	APIKey   string `toml:"api_key"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		LLM: map[string]LLMConfig{
			DefaultProfile: {
				Model:     "gpt-4o",
				MaxTokens: 4096,
			},
		},
		Agent: AgentConfig{
			MaxSteps:           20,
			DuplicateThreshold: 2,
			Workspace:          defaultWorkspace(),
			Compaction: CompactionConfig{
				TurnThreshold: 12,
				KeepRecent:    4,
			},
		},
		Tools: ToolsConfig{
			Shell: ShellConfig{Timeout: 60 * time.Second},
		},
		History: HistoryConfig{
			Path: defaultDBPath(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the config file at path. An empty path means Path(); a missing
// file at the default location yields Defaults, a missing explicit file is an
// error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = Path()
	}

	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns $MANUS_CONFIG or the per-user config location.
func Path() string {
	if p := os.Getenv("MANUS_CONFIG"); p != "" {
		return p
	}
	dir, _ := os.UserConfigDir()
	return filepath.Join(dir, "manus", "config.toml")
}

// ProfileNames returns the configured LLM profile names, sorted.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.LLM))
	for name := range c.LLM {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func decode(data string, cfg *Config) error {
	if _, err := toml.Decode(data, cfg); err != nil {
		return err
	}

	var doc struct {
		LLM toml.Primitive `toml:"llm"`
	}
	md, err := toml.Decode(data, &doc)
	if err != nil {
		return err
	}
	if !md.IsDefined("llm") {
		return nil
	}

	profiles, err := decodeProfiles(md, doc.LLM, cfg.LLM[DefaultProfile])
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	cfg.LLM = profiles
	return nil
}

// decodeProfiles turns the [llm] table into profiles. Scalar keys of [llm]
// overlay base to form the default profile; each [llm.<name>] sub-table
// starts from a copy of the default and overlays its own keys. A sub-table
// that switches api_type without its own base_url does not inherit one.
func decodeProfiles(md toml.MetaData, prim toml.Primitive, base LLMConfig) (map[string]LLMConfig, error) {
	if err := md.PrimitiveDecode(prim, &base); err != nil {
		return nil, err
	}

	var entries map[string]toml.Primitive
	if err := md.PrimitiveDecode(prim, &entries); err != nil {
		return nil, err
	}

	isTable := func(name string) bool { return md.Type("llm", name) == "Hash" }

	if p, ok := entries[DefaultProfile]; ok && isTable(DefaultProfile) {
		if err := md.PrimitiveDecode(p, &base); err != nil {
			return nil, fmt.Errorf("profile %q: %w", DefaultProfile, err)
		}
	}

	profiles := map[string]LLMConfig{DefaultProfile: base}
	for name, p := range entries {
		if name == DefaultProfile || !isTable(name) {
			continue
		}
		c := base
		if err := md.PrimitiveDecode(p, &c); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		// An inherited base_url belongs to the parent's backend.
		if c.APIType != base.APIType && !md.IsDefined("llm", name, "base_url") {
			c.BaseURL = ""
		}
		profiles[name] = c
	}
	return profiles, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MANUS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	} else if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		cfg.Log.Level = "debug"
	}
	if v := os.Getenv("MANUS_BRAVE_API_KEY"); v != "" {
		cfg.Tools.Brave.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if def, ok := cfg.LLM[DefaultProfile]; ok && def.APIKey == "" {
			def.APIKey = v
			cfg.LLM[DefaultProfile] = def
		}
	}
}

func defaultWorkspace() string {
	dir, err := os.Getwd()
	if err != nil {
		return "workspace"
	}
	return filepath.Join(dir, "workspace")
}

func defaultDBPath() string {
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, ".local", "share", "manus", "manus.db")
}
