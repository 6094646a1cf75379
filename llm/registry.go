package llm

import (
	"fmt"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

// Default models used when neither config nor preference names one.
const (
	DefaultAnthropicModel = "claude-haiku-4-5"
	DefaultOpenAIModel    = "gpt-4o"
	DefaultOllamaHost     = "http://localhost:11434"
)

// LLMPreference represents a single provider/model preference.
type LLMPreference struct {
	Provider    string
	Model       string
	Temperature *float64
}

// ClientKey uniquely identifies an LLM client configuration.
type ClientKey struct {
	Provider     string
	Model        string
	APIKey       string // For credential-based providers
	Host         string // For Ollama
	BaseURL      string // For OpenAI
	Organization string // For OpenAI
	Temperature  *float64
}

// ProviderConfig holds the configuration needed for provider resolution.
// It is filled by the config package to avoid an import cycle.
type ProviderConfig struct {
	AnthropicAPIKey string
	AnthropicModel  string
	OllamaHost      string
	OllamaModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIOrg       string
}

// ProviderRegistry manages LLM provider selection and configuration resolution.
// Client construction is left to the caller.
type ProviderRegistry struct {
	enabled []string
	mu      sync.RWMutex
	config  *ProviderConfig
}

// NewProviderRegistry creates a new ProviderRegistry. The order of
// enabledProviders is the fallback order when no preference matches.
func NewProviderRegistry(providerConfig *ProviderConfig, enabledProviders []string) *ProviderRegistry {
	if providerConfig == nil {
		providerConfig = &ProviderConfig{}
	}
	return &ProviderRegistry{
		enabled: append([]string(nil), enabledProviders...),
		config:  providerConfig,
	}
}

// IsProviderEnabled checks if a provider is in the enabled providers list.
func (r *ProviderRegistry) IsProviderEnabled(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isEnabledUnlocked(provider)
}

// IsProviderConfigured checks if a provider has the required configuration (API keys, hosts, etc.).
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isProviderConfiguredUnlocked(provider)
}

// Resolve returns a ClientKey for the first usable preference. Without
// preferences the first enabled and configured provider is used with its
// default model.
func (r *ProviderRegistry) Resolve(prefs []LLMPreference) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(prefs) > 0 {
		var attempted []string
		for _, pref := range prefs {
			attempted = append(attempted, pref.Provider)
			if !r.isEnabledUnlocked(pref.Provider) || !r.isProviderConfiguredUnlocked(pref.Provider) {
				continue
			}
			key, err := r.resolveProviderConfig(pref.Provider, pref.Model)
			if err != nil {
				continue
			}
			key.Temperature = pref.Temperature
			return key, nil
		}
		return nil, fmt.Errorf("no available provider from preferences %v (enabled: %v)", attempted, r.enabled)
	}

	if len(r.enabled) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}
	for _, provider := range r.enabled {
		if !r.isProviderConfiguredUnlocked(provider) {
			continue
		}
		key, err := r.resolveProviderConfig(provider, "")
		if err != nil {
			continue
		}
		return key, nil
	}
	return nil, fmt.Errorf("none of the enabled providers %v is configured", r.enabled)
}

func (r *ProviderRegistry) isEnabledUnlocked(provider string) bool {
	for _, p := range r.enabled {
		if p == provider {
			return true
		}
	}
	return false
}

// isProviderConfiguredUnlocked must be called with r.mu held.
func (r *ProviderRegistry) isProviderConfiguredUnlocked(provider string) bool {
	switch provider {
	case ProviderAnthropic:
		return r.config.AnthropicAPIKey != ""
	case ProviderOllama:
		// No credentials; the host has a default.
		return true
	case ProviderOpenAI:
		return r.config.OpenAIAPIKey != ""
	default:
		return false
	}
}

func (r *ProviderRegistry) resolveProviderConfig(provider, modelOverride string) (*ClientKey, error) {
	key := &ClientKey{
		Provider: provider,
		Model:    modelOverride,
	}

	switch provider {
	case ProviderAnthropic:
		if r.config.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		key.APIKey = r.config.AnthropicAPIKey
		if key.Model == "" {
			key.Model = r.config.AnthropicModel
		}
		if key.Model == "" {
			key.Model = DefaultAnthropicModel
		}

	case ProviderOllama:
		key.Host = r.config.OllamaHost
		if key.Host == "" {
			key.Host = DefaultOllamaHost
		}
		if key.Model == "" {
			key.Model = r.config.OllamaModel
		}
		if key.Model == "" {
			return nil, fmt.Errorf("ollama model not specified and no default configured")
		}

	case ProviderOpenAI:
		if r.config.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		key.APIKey = r.config.OpenAIAPIKey
		key.BaseURL = r.config.OpenAIBaseURL
		key.Organization = r.config.OpenAIOrg
		if key.Model == "" {
			key.Model = r.config.OpenAIModel
		}
		if key.Model == "" {
			key.Model = DefaultOpenAIModel
		}

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}
