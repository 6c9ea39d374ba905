package llm

import (
	"errors"
	"sync"
	"testing"

	"github.com/archil-l/archil-io-v2/internal/config"
	"github.com/archil-l/archil-io-v2/internal/tools"
	"github.com/archil-l/archil-io-v2/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceSelectsProvider(t *testing.T) {
	cfg := config.Default().LLM
	cfg.AnthropicAPIKey = "sk-ant"
	p, err := NewService(cfg).Provider()
	require.NoError(t, err)
	assert.Equal(t, models.ProviderAnthropic, p.Name())

	cfg.Provider = models.ProviderOpenAI
	cfg.OpenAIAPIKey = "sk-oai"
	p, err = NewService(cfg).Provider()
	require.NoError(t, err)
	assert.Equal(t, models.ProviderOpenAI, p.Name())
}

func TestNewServiceMissingKey(t *testing.T) {
	cfg := config.Default().LLM
	_, err := NewService(cfg).Provider()
	require.ErrorIs(t, err, ErrProviderNotConfigured)
	assert.Equal(t, "ANTHROPIC_API_KEY is not configured", err.Error())

	cfg.Provider = models.ProviderOpenAI
	_, err = NewService(cfg).Provider()
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "OPENAI_API_KEY", cfgErr.Setting)

	cfg.Provider = "gemini"
	_, err = NewService(cfg).Provider()
	assert.ErrorIs(t, err, ErrProviderNotSupported)
}

func TestServiceUsage(t *testing.T) {
	s := NewServiceWithProvider(config.Default().LLM, &fakeProvider{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordUsage("b-model", Usage{InputTokens: 2, OutputTokens: 1})
		}()
	}
	wg.Wait()
	s.RecordUsage("a-model", Usage{InputTokens: 5})

	assert.Equal(t, []models.ModelUsage{
		{Model: "a-model", Requests: 1, InputTokens: 5},
		{Model: "b-model", Requests: 10, InputTokens: 20, OutputTokens: 10},
	}, s.Usage())
}

func TestBuildSystemPrompt(t *testing.T) {
	registry, err := tools.NewRegistry(
		tools.Declaration{Name: "getContactInfo", Description: "contact", Executor: tools.ExecutorFunc(nil)},
		tools.Declaration{Name: "setTheme", Description: "Switch the theme"},
	)
	require.NoError(t, err)

	prompt := BuildSystemPrompt("Jane Doe", "Jane builds things.", registry)

	assert.Contains(t, prompt, "representing Jane Doe")
	assert.Contains(t, prompt, "## About Jane Doe\nJane builds things.")
	assert.Contains(t, prompt, "- **setTheme**: Switch the theme")
	assert.NotContains(t, prompt, "**getContactInfo**")
}
