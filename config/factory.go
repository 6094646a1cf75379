package config

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/flyercal/cache"
	"github.com/aschepis/flyercal/llm"
	llmanthropic "github.com/aschepis/flyercal/llm/anthropic"
	llmollama "github.com/aschepis/flyercal/llm/ollama"
	llmopenai "github.com/aschepis/flyercal/llm/openai"
	"github.com/aschepis/flyercal/mcp"
	"github.com/aschepis/flyercal/tools"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// BrowserNone disables the webpageqa tool.
const BrowserNone = "none"

// mcpStartTimeout bounds the handshake with each MCP server.
const mcpStartTimeout = 30 * time.Second

// ProviderConfig extracts what the provider registry needs.
func (c *Config) ProviderConfig() *llm.ProviderConfig {
	return &llm.ProviderConfig{
		AnthropicAPIKey: c.Anthropic.APIKey,
		AnthropicModel:  c.Anthropic.Model,
		OllamaHost:      c.Ollama.Host,
		OllamaModel:     c.Ollama.Model,
		OpenAIAPIKey:    c.OpenAI.APIKey,
		OpenAIBaseURL:   c.OpenAI.BaseURL,
		OpenAIModel:     c.OpenAI.Model,
		OpenAIOrg:       c.OpenAI.Organization,
	}
}

// NewLLMClient resolves the preferred provider and builds its client,
// decorated with request logging and retries.
func NewLLMClient(cfg *Config, logger zerolog.Logger) (llm.Client, *llm.ClientKey, error) {
	registry := llm.NewProviderRegistry(cfg.ProviderConfig(), cfg.LLM.Providers)
	prefs := lo.Map(cfg.LLM.Preferences, func(p LLMPreference, _ int) llm.LLMPreference {
		return llm.LLMPreference{Provider: p.Provider, Model: p.Model, Temperature: p.Temperature}
	})
	key, err := registry.Resolve(prefs)
	if err != nil {
		return nil, nil, err
	}

	base, err := newProviderClient(key, tools.NewHTTPClient(cfg.LLM.Timeout), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s client: %w", key.Provider, err)
	}
	logger.Info().Str("provider", key.Provider).Str("model", key.Model).Msg("Using LLM provider")

	policy := llm.DefaultRetryPolicy()
	if cfg.LLM.MaxRetries >= 0 {
		policy.MaxRetries = uint64(cfg.LLM.MaxRetries)
	}
	client := llm.WrapWithMiddleware(base, llm.NewLoggingMiddleware(logger))
	return llm.WithRetry(client, policy, logger), key, nil
}

func newProviderClient(key *llm.ClientKey, httpClient *http.Client, logger zerolog.Logger) (llm.Client, error) {
	switch key.Provider {
	case llm.ProviderAnthropic:
		return llmanthropic.NewAnthropicClient(key.APIKey, key.Model, logger, option.WithHTTPClient(httpClient))
	case llm.ProviderOpenAI:
		return llmopenai.NewOpenAIClient(key.APIKey, key.BaseURL, key.Model, key.Organization, httpClient)
	case llm.ProviderOllama:
		return llmollama.NewOllamaClient(key.Host, key.Model, httpClient)
	default:
		return nil, fmt.Errorf("unknown provider: %s", key.Provider)
	}
}

// OpenCache opens the configured cache store. The "none" backend returns a
// nil cache, which caches nothing.
func OpenCache(cfg *Config, logger zerolog.Logger) (*cache.Cache, error) {
	var store cache.Store
	switch cfg.Cache.Backend {
	case CacheNone:
		return nil, nil
	case CacheMemory:
		store = cache.NewMemoryStore()
	case CacheSQLite:
		s, err := cache.OpenSQLiteStore(cfg.Cache.Path, logger)
		if err != nil {
			return nil, err
		}
		store = s
	case CacheNDJSON, "":
		s, err := cache.NewNDJSONStore(cfg.Cache.Path, logger)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
	return cache.New(store, logger), nil
}

// Toolset is the tool registry plus the MCP connections backing some of
// its tools.
type Toolset struct {
	Registry *tools.Registry
	clients  []mcp.Client
}

// Close disconnects from MCP servers.
func (t *Toolset) Close() error {
	var firstErr error
	for _, c := range t.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewToolset builds the registry in catalog order: ocr, google, gmaps,
// webpageqa, then MCP tools. Tools whose credentials are missing are left
// out with a warning. client answers vision OCR and webpage questions;
// model is its default model name.
func NewToolset(ctx context.Context, cfg *Config, c *cache.Cache, client llm.Client, model string, logger zerolog.Logger) (*Toolset, error) {
	registry := tools.NewRegistry(logger)
	httpClient := tools.NewHTTPClient(tools.DefaultHTTPTimeout)
	ts := &Toolset{Registry: registry}

	if ocr, err := newOCRTool(cfg, client, model, httpClient, logger); err != nil {
		return nil, err
	} else if ocr != nil {
		registry.Register(tools.Cached(ocr, c, "ocr"))
	}

	if cfg.Search.SerperAPIKey != "" {
		serper := tools.NewSerperClient(tools.SerperConfig{
			APIKey:  cfg.Search.SerperAPIKey,
			BaseURL: cfg.Search.BaseURL,
			GL:      cfg.Search.GL,
			HL:      cfg.Search.HL,
		}, httpClient, logger)
		geocoder := tools.NewGeocoder(tools.GeocoderConfig{
			BaseURL:      cfg.Geocode.NominatimURL,
			CountryCodes: cfg.Geocode.CountryCodes,
			UserAgent:    cfg.Geocode.UserAgent,
		}, httpClient, c, logger)
		registry.Register(tools.Cached(tools.NewGoogleTool(serper, cfg.Search.TopK), c, "google"))
		registry.Register(tools.Cached(tools.NewLocationTool(serper, geocoder, cfg.Geocode.WhereIsPrefix, logger), c, "whereis"))
	} else {
		logger.Warn().Msg("SERPER_API_KEY not set, google and gmaps tools disabled")
	}

	if qa, err := newWebpageQATool(cfg, client, model, logger); err != nil {
		return nil, err
	} else if qa != nil {
		registry.Register(tools.Cached(qa, c, "webpageqa"))
	}

	if err := ts.addMCPTools(ctx, cfg, logger); err != nil {
		_ = ts.Close()
		return nil, err
	}
	logger.Info().Int("count", registry.Len()).Strs("tools", registry.Names()).Msg("Toolset ready")
	return ts, nil
}

func newOCRTool(cfg *Config, client llm.Client, model string, httpClient *http.Client, logger zerolog.Logger) (tools.Tool, error) {
	var engine tools.OCREngine
	switch cfg.OCR.Provider {
	case OCRNone:
		return nil, nil
	case OCRAzure:
		if cfg.OCR.Endpoint == "" || cfg.OCR.APIKey == "" {
			return nil, fmt.Errorf("azure OCR needs AZURE_DOCINTEL_ENDPOINT and AZURE_DOCINTEL_KEY")
		}
		engine = tools.NewAzureEngine(tools.AzureConfig{
			Endpoint:     cfg.OCR.Endpoint,
			APIKey:       cfg.OCR.APIKey,
			PollInterval: cfg.OCR.PollInterval,
		}, httpClient, logger)
	case OCRLLM, "":
		if client == nil {
			return nil, fmt.Errorf("llm OCR needs an LLM client")
		}
		engine = tools.NewVisionEngine(client, lo.CoalesceOrEmpty(cfg.OCR.Model, model))
	default:
		return nil, fmt.Errorf("unknown OCR provider: %s", cfg.OCR.Provider)
	}
	return tools.NewOCRTool(engine, tools.NewImageLoader(httpClient), logger), nil
}

func newWebpageQATool(cfg *Config, client llm.Client, model string, logger zerolog.Logger) (tools.Tool, error) {
	var fetcher tools.Fetcher
	switch cfg.Browser.Mode {
	case BrowserNone:
		return nil, nil
	case BrowserDocker:
		fetcher = tools.NewDockerFetcher(tools.DockerConfig{
			Image:          cfg.Browser.Image,
			ScriptDir:      cfg.Browser.ScriptDir,
			SeccompProfile: cfg.Browser.SeccompProfile,
		}, nil, logger)
	case BrowserHTTP, "":
		fetcher = tools.NewHTTPFetcher(tools.NewHTTPClient(cfg.Browser.Timeout), cfg.Browser.UserAgent)
	default:
		return nil, fmt.Errorf("unknown browser mode: %s", cfg.Browser.Mode)
	}
	if client == nil {
		return nil, fmt.Errorf("webpageqa needs an LLM client")
	}

	tokenizer, err := tools.NewTiktokenTokenizer(cfg.WebpageQA.Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s tokenizer: %w", cfg.WebpageQA.Encoding, err)
	}
	splitter := &tools.Splitter{
		Tokenizer: tokenizer,
		ChunkSize: cfg.WebpageQA.ChunkTokens,
		Overlap:   cfg.WebpageQA.ChunkOverlap,
	}
	return tools.NewWebpageQATool(fetcher, splitter, client, tools.WebpageQAConfig{
		Model:            lo.CoalesceOrEmpty(cfg.WebpageQA.Model, model),
		MaxContextTokens: cfg.WebpageQA.MaxContextTokens,
	}, logger), nil
}

// addMCPTools connects to every enabled MCP server. A server that cannot be
// reached is skipped with an error log; the run can go on without it.
func (t *Toolset) addMCPTools(ctx context.Context, cfg *Config, logger zerolog.Logger) error {
	adapter := mcp.NewNameAdapter()
	names := lo.Keys(cfg.MCPServers)
	sort.Strings(names)

	for _, name := range names {
		server := cfg.MCPServers[name]
		if server == nil || server.Disabled {
			continue
		}
		log := logger.With().Str("mcp_server", name).Logger()

		var (
			client mcp.Client
			err    error
		)
		switch {
		case server.Command != "":
			client, err = mcp.NewStdioClient(logger, server.Command, server.Args, server.Env)
		case server.URL != "":
			client, err = mcp.NewHTTPClient(logger, server.URL)
		default:
			return fmt.Errorf("mcp server %q needs a command or a url", name)
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to create MCP client, skipping server")
			continue
		}

		startCtx, cancel := context.WithTimeout(ctx, mcpStartTimeout)
		loaded, err := startAndLoad(startCtx, client, adapter)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("Failed to load MCP tools, skipping server")
			_ = client.Close()
			continue
		}
		t.clients = append(t.clients, client)
		for _, tool := range loaded {
			if _, exists := t.Registry.Lookup(tool.Name()); exists {
				log.Warn().Str("tool", tool.Name()).Msg("MCP tool shadows an existing tool, skipping")
				continue
			}
			t.Registry.Register(tool)
		}
		log.Info().Int("tools", len(loaded)).Msg("Loaded MCP tools")
	}
	return nil
}

func startAndLoad(ctx context.Context, client mcp.Client, adapter *mcp.NameAdapter) ([]tools.Tool, error) {
	if err := client.Start(ctx); err != nil {
		return nil, err
	}
	return mcp.LoadTools(ctx, client, adapter)
}
