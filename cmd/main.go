package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/archil-l/archil-io-v2/internal/app"
	"github.com/archil-l/archil-io-v2/internal/auth"
	"github.com/archil-l/archil-io-v2/internal/config"
	"github.com/archil-l/archil-io-v2/internal/llm"
	"github.com/archil-l/archil-io-v2/internal/logging"
	"github.com/archil-l/archil-io-v2/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "archil-io",
	Short: "Chat relay for the personal website assistant",
	Long: `Chat relay for the personal website assistant.
Without a subcommand, starts the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a token and print it as JSON",
	Long: `Mint a token with the configured signing secret and print
{token, expiresIn, expiresAt}. Useful for calling /api/agent by hand.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by all commands.
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, nil)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// secretStore picks the signing secret source, most specific first, and
// returns the id to fetch from it.
func secretStore(ctx context.Context, cfg config.AuthConfig) (auth.SecretStore, string, error) {
	switch {
	case cfg.SecretARN != "":
		store, err := auth.NewSecretsManagerStore(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, "", err
		}
		return store, cfg.SecretARN, nil
	case cfg.SecretFile != "":
		return auth.FileSecretStore{}, cfg.SecretFile, nil
	case cfg.Secret != "":
		return auth.NewStaticSecretStore(cfg.Secret), "", nil
	}
	return nil, "", fmt.Errorf("%w: no signing secret source configured", config.ErrInvalidConfig)
}

func newIssuer(ctx context.Context, cfg *config.Config) (*auth.Issuer, error) {
	store, secretID, err := secretStore(ctx, cfg.Auth)
	if err != nil {
		return nil, err
	}
	return auth.NewIssuer(store, secretID,
		auth.WithLifetime(cfg.Auth.TokenLifetime),
		auth.WithRefreshThreshold(cfg.Auth.RefreshThreshold),
		auth.WithIdentity(cfg.Auth.Issuer, cfg.Auth.Subject),
	), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	// Create a context that will be canceled on program termination
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	issuer, err := newIssuer(ctx, cfg)
	if err != nil {
		return err
	}

	service := llm.NewService(cfg.LLM)
	if _, err := service.Provider(); err != nil {
		logger.WithError(err).Warn("Completion provider unavailable; chat requests will fail")
	} else {
		logger.WithFields(logrus.Fields{
			"provider": cfg.LLM.Provider,
			"model":    cfg.LLM.Model,
		}).Info("Enabled LLM provider")
	}
	if !cfg.CaptchaEnabled() {
		logger.Info("CAPTCHA verification disabled")
	}

	a := app.NewApp(cfg, logger, issuer, service)
	return a.Serve(ctx)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}

	issuer, err := newIssuer(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	issued, err := issuer.Issue(cmd.Context())
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	exp, _ := issuer.Expiry()
	out, err := json.MarshalIndent(models.TokenResponse{
		Token:     issued.Token,
		ExpiresIn: int64(exp.ExpiresIn.Seconds()),
		ExpiresAt: exp.ExpiresAt.Unix(),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
