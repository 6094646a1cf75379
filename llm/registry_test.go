package llm

import (
	"testing"
)

func TestProviderRegistry_IsProviderEnabled(t *testing.T) {
	registry := NewProviderRegistry(&ProviderConfig{}, []string{"anthropic", "ollama"})

	if !registry.IsProviderEnabled("anthropic") {
		t.Error("anthropic should be enabled")
	}
	if !registry.IsProviderEnabled("ollama") {
		t.Error("ollama should be enabled")
	}
	if registry.IsProviderEnabled("openai") {
		t.Error("openai should not be enabled")
	}
}

func TestProviderRegistry_IsProviderConfigured(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ProviderConfig
		provider string
		want     bool
	}{
		{"anthropic without key", ProviderConfig{}, ProviderAnthropic, false},
		{"anthropic with key", ProviderConfig{AnthropicAPIKey: "k"}, ProviderAnthropic, true},
		{"ollama always", ProviderConfig{}, ProviderOllama, true},
		{"openai without key", ProviderConfig{}, ProviderOpenAI, false},
		{"openai with key", ProviderConfig{OpenAIAPIKey: "k"}, ProviderOpenAI, true},
		{"unknown", ProviderConfig{}, "gemini", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			registry := NewProviderRegistry(&cfg, []string{tt.provider})
			if got := registry.IsProviderConfigured(tt.provider); got != tt.want {
				t.Errorf("IsProviderConfigured(%q) = %v, want %v", tt.provider, got, tt.want)
			}
		})
	}
}

func TestProviderRegistry_Resolve_WithPreferences(t *testing.T) {
	registry := NewProviderRegistry(&ProviderConfig{AnthropicAPIKey: "test-key", OllamaModel: "llava"}, []string{ProviderAnthropic, ProviderOllama})

	temp := 0.0
	key, err := registry.Resolve([]LLMPreference{
		{Provider: ProviderOpenAI, Model: "gpt-4o"},
		{Provider: ProviderAnthropic, Model: "claude-sonnet-4-5", Temperature: &temp},
		{Provider: ProviderOllama},
	})
	if err != nil {
		t.Fatalf("Failed to resolve config: %v", err)
	}
	if key.Provider != ProviderAnthropic {
		t.Errorf("Expected provider 'anthropic', got '%s'", key.Provider)
	}
	if key.Model != "claude-sonnet-4-5" {
		t.Errorf("Expected model 'claude-sonnet-4-5', got '%s'", key.Model)
	}
	if key.Temperature == nil || *key.Temperature != 0 {
		t.Errorf("Expected temperature to carry over, got %v", key.Temperature)
	}
}

func TestProviderRegistry_Resolve_WithoutPreferences(t *testing.T) {
	registry := NewProviderRegistry(&ProviderConfig{OllamaModel: "llava"}, []string{ProviderAnthropic, ProviderOllama})

	key, err := registry.Resolve(nil)
	if err != nil {
		t.Fatalf("Failed to resolve config: %v", err)
	}
	if key.Provider != ProviderOllama {
		t.Errorf("Expected unconfigured anthropic to be skipped, got '%s'", key.Provider)
	}
	if key.Host != DefaultOllamaHost {
		t.Errorf("Expected default host %q, got %q", DefaultOllamaHost, key.Host)
	}
	if key.Model != "llava" {
		t.Errorf("Expected model 'llava', got %q", key.Model)
	}
}

func TestProviderRegistry_Resolve_Defaults(t *testing.T) {
	registry := NewProviderRegistry(&ProviderConfig{AnthropicAPIKey: "a", OpenAIAPIKey: "o"}, []string{ProviderOpenAI, ProviderAnthropic})

	key, err := registry.Resolve(nil)
	if err != nil {
		t.Fatalf("Failed to resolve config: %v", err)
	}
	if key.Provider != ProviderOpenAI || key.Model != DefaultOpenAIModel {
		t.Errorf("Expected openai/%s, got %s/%s", DefaultOpenAIModel, key.Provider, key.Model)
	}

	key, err = registry.Resolve([]LLMPreference{{Provider: ProviderAnthropic}})
	if err != nil {
		t.Fatalf("Failed to resolve config: %v", err)
	}
	if key.Model != DefaultAnthropicModel {
		t.Errorf("Expected default anthropic model, got %q", key.Model)
	}
}

func TestProviderRegistry_Resolve_Errors(t *testing.T) {
	if _, err := NewProviderRegistry(nil, nil).Resolve(nil); err == nil {
		t.Error("Expected error when no providers are enabled")
	}

	registry := NewProviderRegistry(&ProviderConfig{}, []string{ProviderOllama})
	if _, err := registry.Resolve(nil); err == nil {
		t.Error("Expected error when ollama has no model")
	}
	if _, err := registry.Resolve([]LLMPreference{{Provider: ProviderAnthropic}}); err == nil {
		t.Error("Expected error when no preference is enabled")
	}
}
