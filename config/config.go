// Package config loads flyercal's YAML configuration and builds the
// components it describes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// AgentConfig configures the agent loop.
type AgentConfig struct {
	MaxSteps    int           `yaml:"max_steps,omitempty"`
	StepTimeout time.Duration `yaml:"step_timeout,omitempty"` // e.g. "2m"
	ToolTimeout time.Duration `yaml:"tool_timeout,omitempty"`
	ToolRetries int           `yaml:"tool_retries,omitempty"`
	Location    string        `yaml:"location,omitempty"` // location fact given to the model
	// RecordInvalidCommands shows the model its unknown commands as memory
	// entries.
	RecordInvalidCommands bool `yaml:"record_invalid_commands,omitempty"`
}

// LLMPreference represents a single provider/model preference. The first
// enabled and configured preference is used.
type LLMPreference struct {
	Provider    string   `yaml:"provider"`              // "anthropic", "ollama", or "openai"
	Model       string   `yaml:"model,omitempty"`       // provider default if omitted
	Temperature *float64 `yaml:"temperature,omitempty"` // optional temperature override
}

// LLMConfig selects and tunes the language model.
type LLMConfig struct {
	Providers   []string        `yaml:"providers,omitempty"` // enabled providers, in fallback order
	Preferences []LLMPreference `yaml:"preferences,omitempty"`
	MaxTokens   int64           `yaml:"max_tokens,omitempty"`
	MaxRetries  int             `yaml:"max_retries,omitempty"`
	Timeout     time.Duration   `yaml:"timeout,omitempty"` // HTTP timeout for provider calls
}

// AnthropicConfig represents configuration for Anthropic LLM provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// OllamaConfig represents configuration for Ollama LLM provider.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`
	Model string `yaml:"model,omitempty"`
}

// OpenAIConfig represents configuration for OpenAI-compatible providers.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"`
	Model        string `yaml:"model,omitempty"`
	Organization string `yaml:"organization,omitempty"`
}

// Cache backends.
const (
	CacheNDJSON = "ndjson"
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
	CacheNone   = "none"
)

// CacheConfig selects the result cache store.
type CacheConfig struct {
	Backend string `yaml:"backend,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// SearchConfig configures the Serper backed "google" and "gmaps" tools.
type SearchConfig struct {
	SerperAPIKey string `yaml:"serper_api_key,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"`
	GL           string `yaml:"gl,omitempty"`
	HL           string `yaml:"hl,omitempty"`
	TopK         int    `yaml:"top_k,omitempty"`
}

// GeocodeConfig configures the Nominatim fallback of "gmaps".
type GeocodeConfig struct {
	NominatimURL  string `yaml:"nominatim_url,omitempty"`
	CountryCodes  string `yaml:"country_codes,omitempty"`
	UserAgent     string `yaml:"user_agent,omitempty"`
	WhereIsPrefix string `yaml:"where_is_prefix,omitempty"`
}

// OCR providers.
const (
	OCRLLM   = "llm"
	OCRAzure = "azure"
	OCRNone  = "none"
)

// OCRConfig selects the engine behind the "ocr" tool.
type OCRConfig struct {
	Provider     string        `yaml:"provider,omitempty"`
	Model        string        `yaml:"model,omitempty"` // vision model override for the llm engine
	Endpoint     string        `yaml:"endpoint,omitempty"`
	APIKey       string        `yaml:"api_key,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

// Browser modes.
const (
	BrowserHTTP   = "http"
	BrowserDocker = "docker"
)

// BrowserConfig selects how "webpageqa" loads pages.
type BrowserConfig struct {
	Mode           string        `yaml:"mode,omitempty"`
	Image          string        `yaml:"image,omitempty"`
	ScriptDir      string        `yaml:"script_dir,omitempty"`
	SeccompProfile string        `yaml:"seccomp_profile,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	UserAgent      string        `yaml:"user_agent,omitempty"`
}

// WebpageQAConfig tunes page chunking.
type WebpageQAConfig struct {
	ChunkTokens      int    `yaml:"chunk_tokens,omitempty"`
	ChunkOverlap     int    `yaml:"chunk_overlap,omitempty"`
	MaxContextTokens int    `yaml:"max_context_tokens,omitempty"`
	Encoding         string `yaml:"encoding,omitempty"`
	Model            string `yaml:"model,omitempty"`
}

// MCPServerConfig represents configuration for an MCP server.
type MCPServerConfig struct {
	Command  string   `yaml:"command,omitempty"` // For STDIO transport
	URL      string   `yaml:"url,omitempty"`     // For HTTP transport
	Args     []string `yaml:"args,omitempty"`
	Env      []string `yaml:"env,omitempty"`
	Disabled bool     `yaml:"disabled,omitempty"`
}

// WatchConfig configures the inbox watcher.
type WatchConfig struct {
	Dir      string `yaml:"dir,omitempty"`
	OutDir   string `yaml:"out_dir,omitempty"`
	Schedule string `yaml:"schedule,omitempty"` // e.g. "5m" or "0 */15 * * * *" (cron)
	Force    bool   `yaml:"force,omitempty"`
}

// NotifyConfig enables desktop notifications when a run ends.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Title   string `yaml:"title,omitempty"`
}

// TraceConfig enables OpenTelemetry spans for runs.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	File    string `yaml:"file,omitempty"` // stdout when empty
}

// Config is the complete configuration.
type Config struct {
	Agent      AgentConfig                 `yaml:"agent,omitempty"`
	LLM        LLMConfig                   `yaml:"llm,omitempty"`
	Anthropic  AnthropicConfig             `yaml:"anthropic,omitempty"`
	Ollama     OllamaConfig                `yaml:"ollama,omitempty"`
	OpenAI     OpenAIConfig                `yaml:"openai,omitempty"`
	Cache      CacheConfig                 `yaml:"cache,omitempty"`
	Search     SearchConfig                `yaml:"search,omitempty"`
	Geocode    GeocodeConfig               `yaml:"geocode,omitempty"`
	OCR        OCRConfig                   `yaml:"ocr,omitempty"`
	Browser    BrowserConfig               `yaml:"browser,omitempty"`
	WebpageQA  WebpageQAConfig             `yaml:"webpageqa,omitempty"`
	MCPServers map[string]*MCPServerConfig `yaml:"mcp_servers,omitempty"`
	Watch      WatchConfig                 `yaml:"watch,omitempty"`
	Notify     NotifyConfig                `yaml:"notify,omitempty"`
	Trace      TraceConfig                 `yaml:"trace,omitempty"`
}

// Defaults returns the configuration used when nothing is configured.
func Defaults() Config {
	return Config{
		Agent: AgentConfig{
			MaxSteps:    10,
			StepTimeout: 2 * time.Minute,
			ToolTimeout: 3 * time.Minute,
			ToolRetries: 2,
			Location:    "Spain",
		},
		LLM: LLMConfig{
			Providers:  []string{"anthropic", "openai", "ollama"},
			MaxTokens:  2048,
			MaxRetries: 3,
			Timeout:    2 * time.Minute,
		},
		Ollama: OllamaConfig{
			Host: "http://localhost:11434",
		},
		Cache: CacheConfig{
			Backend: CacheNDJSON,
			Path:    "~/.flyercal/cache.ndjson",
		},
		Search: SearchConfig{
			GL:   "es",
			HL:   "es",
			TopK: 3,
		},
		Geocode: GeocodeConfig{
			CountryCodes:  "es",
			WhereIsPrefix: "where is",
		},
		OCR: OCRConfig{
			Provider:     OCRLLM,
			PollInterval: time.Second,
		},
		Browser: BrowserConfig{
			Mode:    BrowserHTTP,
			Timeout: 60 * time.Second,
		},
		WebpageQA: WebpageQAConfig{
			ChunkTokens:      3000,
			ChunkOverlap:     30,
			MaxContextTokens: 12000,
			Encoding:         "cl100k_base",
		},
		MCPServers: make(map[string]*MCPServerConfig),
		Watch: WatchConfig{
			Schedule: "1m",
		},
		Notify: NotifyConfig{
			Title: "flyercal",
		},
	}
}

// DefaultPath returns the config file path. It can be overridden with the
// FLYERCAL_CONFIG environment variable.
func DefaultPath() string {
	if envPath := os.Getenv("FLYERCAL_CONFIG"); envPath != "" {
		return ExpandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.flyercal/config.yaml"
	}
	return filepath.Join(homeDir, ".flyercal", "config.yaml")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

// Load reads the configuration at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	expandedPath := ExpandPath(path)
	if data, err := os.ReadFile(expandedPath); err == nil { //#nosec G304 -- intentional file read for config
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %q: %w", expandedPath, err)
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %q: %w", expandedPath, err)
	}

	applyEnv(&cfg)

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]*MCPServerConfig)
	}
	cfg.Cache.Path = ExpandPath(cfg.Cache.Path)
	cfg.Watch.Dir = ExpandPath(cfg.Watch.Dir)
	cfg.Watch.OutDir = ExpandPath(cfg.Watch.OutDir)
	cfg.Trace.File = ExpandPath(cfg.Trace.File)
	return &cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(cfg *Config, path string) error {
	expandedPath := ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(expandedPath), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnv lets credentials and endpoints come from the environment, which
// wins over the file.
func applyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"ANTHROPIC_API_KEY", &cfg.Anthropic.APIKey},
		{"ANTHROPIC_MODEL", &cfg.Anthropic.Model},
		{"OPENAI_API_KEY", &cfg.OpenAI.APIKey},
		{"OPENAI_BASE_URL", &cfg.OpenAI.BaseURL},
		{"OPENAI_MODEL", &cfg.OpenAI.Model},
		{"OPENAI_ORG_ID", &cfg.OpenAI.Organization},
		{"OLLAMA_HOST", &cfg.Ollama.Host},
		{"OLLAMA_MODEL", &cfg.Ollama.Model},
		{"SERPER_API_KEY", &cfg.Search.SerperAPIKey},
		{"AZURE_DOCINTEL_ENDPOINT", &cfg.OCR.Endpoint},
		{"AZURE_DOCINTEL_KEY", &cfg.OCR.APIKey},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}
