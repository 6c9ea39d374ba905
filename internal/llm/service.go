package llm

import (
	"sort"
	"sync"

	"github.com/archil-l/archil-io-v2/internal/config"
	"github.com/archil-l/archil-io-v2/pkg/models"
)

// ConfigError reports a provider setting that is missing at request time.
type ConfigError struct {
	Setting string
}

func (e *ConfigError) Error() string {
	return e.Setting + " is not configured"
}

// Is makes ConfigError match ErrProviderNotConfigured.
func (e *ConfigError) Is(target error) bool {
	return target == ErrProviderNotConfigured
}

// Service owns the completion provider and per-model usage accounting
type Service struct {
	config      config.LLMConfig
	provider    Provider
	providerErr error
	usageLock   sync.RWMutex
	usage       map[string]models.ModelUsage
}

// NewService creates the provider selected by cfg. A missing API key is not
// fatal here; it is reported by Provider on every request.
func NewService(cfg config.LLMConfig) *Service {
	s := &Service{
		config: cfg,
		usage:  make(map[string]models.ModelUsage),
	}
	s.provider, s.providerErr = newProvider(cfg)
	return s
}

// NewServiceWithProvider creates a service around an existing provider
func NewServiceWithProvider(cfg config.LLMConfig, provider Provider) *Service {
	return &Service{
		config:   cfg,
		provider: provider,
		usage:    make(map[string]models.ModelUsage),
	}
}

func newProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case models.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, &ConfigError{Setting: "ANTHROPIC_API_KEY"}
		}
		return NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.BaseURL), nil
	case models.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, &ConfigError{Setting: "OPENAI_API_KEY"}
		}
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.BaseURL), nil
	default:
		return nil, ErrProviderNotSupported
	}
}

// Provider returns the configured provider or the reason there is none
func (s *Service) Provider() (Provider, error) {
	return s.provider, s.providerErr
}

// ProviderName is the configured provider, available or not
func (s *Service) ProviderName() models.LanguageModelProvider {
	return s.config.Provider
}

// Config returns the LLM settings the service was built with
func (s *Service) Config() config.LLMConfig {
	return s.config
}

// RecordUsage records token usage for a model
func (s *Service) RecordUsage(model string, usage Usage) {
	s.usageLock.Lock()
	defer s.usageLock.Unlock()

	existing, exists := s.usage[model]
	if !exists {
		existing = models.ModelUsage{Model: model}
	}
	existing.Requests++
	existing.InputTokens += usage.InputTokens
	existing.OutputTokens += usage.OutputTokens

	s.usage[model] = existing
}

// Usage returns a snapshot of usage per model, sorted by model name
func (s *Service) Usage() []models.ModelUsage {
	s.usageLock.RLock()
	defer s.usageLock.RUnlock()

	out := make([]models.ModelUsage, 0, len(s.usage))
	for _, u := range s.usage {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}
