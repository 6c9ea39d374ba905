// Package config loads the relay configuration from defaults, an optional
// YAML file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/archil-l/archil-io-v2/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete runtime configuration. It is built once at startup
// and handed to the components that need it.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	Stream    StreamConfig    `yaml:"stream"`
	Captcha   CaptchaConfig   `yaml:"captcha"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Assistant AssistantConfig `yaml:"assistant"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig controls where the signing secret lives and how tokens are minted.
type AuthConfig struct {
	// SecretARN names an AWS Secrets Manager secret holding {"secret": "..."}
	SecretARN string `yaml:"secret_arn"`
	// SecretFile is a local JSON file with the same shape
	SecretFile string `yaml:"secret_file"`
	// Secret is a raw signing secret, meant for development only
	Secret    string `yaml:"secret"`
	AWSRegion string `yaml:"aws_region"`

	TokenLifetime    time.Duration `yaml:"token_lifetime"`
	RefreshThreshold time.Duration `yaml:"refresh_threshold"`
	Issuer           string        `yaml:"issuer"`
	Subject          string        `yaml:"subject"`
}

// LLMConfig selects and tunes the completion provider.
type LLMConfig struct {
	Provider        models.LanguageModelProvider `yaml:"provider"`
	Model           string                       `yaml:"model"`
	AnthropicAPIKey string                       `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string                       `yaml:"openai_api_key"`
	BaseURL         string                       `yaml:"base_url"`
	MaxTokens       int64                        `yaml:"max_tokens"`
	MaxToolRounds   int                          `yaml:"max_tool_rounds"`
	ToolConcurrency int                          `yaml:"tool_concurrency"`
}

// StreamConfig fixes the SSE framing for the deployment.
type StreamConfig struct {
	Framing string `yaml:"framing"`
}

// CaptchaConfig enables Turnstile verification when a secret is present.
type CaptchaConfig struct {
	TurnstileSecret string `yaml:"turnstile_secret"`
	VerifyURL       string `yaml:"verify_url"`
}

// RateLimitConfig bounds chat requests per client address.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// MaxConcurrentStreams caps open streams per client; 0 disables the cap
	MaxConcurrentStreams int `yaml:"max_concurrent_streams"`
}

// AssistantConfig describes the persona the assistant speaks for.
type AssistantConfig struct {
	OwnerName    string `yaml:"owner_name"`
	KnowledgeDir string `yaml:"knowledge_dir"`
}

// LoggingConfig controls logrus output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			TokenLifetime:    time.Hour,
			RefreshThreshold: 5 * time.Minute,
			Issuer:           "archil-io-v2",
			Subject:          "app",
		},
		LLM: LLMConfig{
			Provider:        models.ProviderAnthropic,
			Model:           "claude-3-5-haiku-latest",
			MaxTokens:       4096,
			MaxToolRounds:   5,
			ToolConcurrency: 1,
		},
		Stream: StreamConfig{
			Framing: "event",
		},
		Captcha: CaptchaConfig{
			VerifyURL: "https://challenges.cloudflare.com/turnstile/v0/siteverify",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute:    20,
			MaxConcurrentStreams: 3,
		},
		Assistant: AssistantConfig{
			OwnerName: "Archil Lelashvili",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration. An empty path skips the YAML layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("JWT_SECRET_ARN", &c.Auth.SecretARN)
	str("JWT_SECRET_FILE", &c.Auth.SecretFile)
	str("JWT_SECRET", &c.Auth.Secret)
	str("AWS_REGION", &c.Auth.AWSRegion)
	str("ANTHROPIC_API_KEY", &c.LLM.AnthropicAPIKey)
	str("OPENAI_API_KEY", &c.LLM.OpenAIAPIKey)
	str("LLM_MODEL", &c.LLM.Model)
	str("LLM_BASE_URL", &c.LLM.BaseURL)
	str("TURNSTILE_SECRET_KEY", &c.Captcha.TurnstileSecret)
	str("KNOWLEDGE_DIR", &c.Assistant.KnowledgeDir)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LISTEN_ADDR", &c.Server.Addr)

	if v, ok := lookup("PORT"); ok && v != "" {
		c.Server.Addr = ":" + v
	}
	if v, ok := lookup("LLM_PROVIDER"); ok && v != "" {
		c.LLM.Provider = models.LanguageModelProvider(strings.ToLower(v))
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("JWT_EXPIRY_HOURS"); ok && v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: JWT_EXPIRY_HOURS: %v", ErrInvalidConfig, err)
		}
		c.Auth.TokenLifetime = time.Duration(hours) * time.Hour
	}
	return nil
}

// Validate rejects configurations the server cannot start with. Missing
// provider API keys are not fatal: the chat endpoint reports them per request.
func (c *Config) Validate() error {
	var problems []string

	if c.Auth.SecretARN == "" && c.Auth.SecretFile == "" && c.Auth.Secret == "" {
		problems = append(problems, "one of auth.secret_arn, auth.secret_file or auth.secret is required")
	}
	if c.Auth.TokenLifetime <= 0 {
		problems = append(problems, "auth.token_lifetime must be positive")
	}
	if c.Auth.RefreshThreshold < 0 || c.Auth.RefreshThreshold >= c.Auth.TokenLifetime {
		problems = append(problems, "auth.refresh_threshold must be within the token lifetime")
	}
	switch c.LLM.Provider {
	case models.ProviderAnthropic, models.ProviderOpenAI:
	default:
		problems = append(problems, fmt.Sprintf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		problems = append(problems, "llm.model is required")
	}
	if c.LLM.MaxTokens <= 0 {
		problems = append(problems, "llm.max_tokens must be positive")
	}
	if c.LLM.MaxToolRounds < 1 {
		problems = append(problems, "llm.max_tool_rounds must be at least 1")
	}
	if c.LLM.ToolConcurrency < 1 {
		problems = append(problems, "llm.tool_concurrency must be at least 1")
	}
	if c.Stream.Framing != "event" && c.Stream.Framing != "data" {
		problems = append(problems, fmt.Sprintf("stream.framing %q must be event or data", c.Stream.Framing))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		problems = append(problems, "rate_limit.requests_per_minute must not be negative")
	}
	if c.RateLimit.MaxConcurrentStreams < 0 {
		problems = append(problems, "rate_limit.max_concurrent_streams must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// CaptchaEnabled reports whether Turnstile verification is configured.
func (c *Config) CaptchaEnabled() bool {
	return c.Captcha.TurnstileSecret != ""
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
