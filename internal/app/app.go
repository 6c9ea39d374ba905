package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/archil-l/archil-io-v2/internal/auth"
	"github.com/archil-l/archil-io-v2/internal/captcha"
	"github.com/archil-l/archil-io-v2/internal/config"
	"github.com/archil-l/archil-io-v2/internal/conn"
	"github.com/archil-l/archil-io-v2/internal/llm"
	"github.com/archil-l/archil-io-v2/internal/stream"
	"github.com/archil-l/archil-io-v2/internal/tools"
	"github.com/archil-l/archil-io-v2/pkg/models"
	"github.com/archil-l/archil-io-v2/pkg/utils"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	limiterPruneInterval = time.Minute
	limiterIdleTimeout   = 10 * time.Minute
)

// App represents the main application with its router and the chat relay.
type App struct {
	Router  *mux.Router
	LLM     *llm.ServerState
	Streams *conn.Pool
	Limiter *utils.RateLimiter

	config *config.Config
	logger logrus.FieldLogger
}

// NewApp creates and initializes a new instance of the App struct. The issuer
// and service are built by the caller since they hold external credentials.
func NewApp(cfg *config.Config, logger logrus.FieldLogger, issuer *auth.Issuer, service *llm.Service) *App {
	knowledge := tools.NewKnowledge(cfg.Assistant.KnowledgeDir, logger)
	registry := tools.Default(knowledge)

	var verifier captcha.Verifier
	if cfg.CaptchaEnabled() {
		verifier = captcha.NewTurnstile(cfg.Captcha.TurnstileSecret, cfg.Captcha.VerifyURL, nil)
	}

	a := &App{
		Router:  mux.NewRouter(),
		Streams: conn.NewPool(cfg.RateLimit.MaxConcurrentStreams),
		Limiter: utils.NewRateLimiter(),
		config:  cfg,
		logger:  logger,
	}

	a.LLM = llm.NewLLMServerState(llm.ServerDeps{
		Service:   service,
		Issuer:    issuer,
		Registry:  registry,
		Streams:   a.Streams,
		Captcha:   verifier,
		Limiter:   a.Limiter,
		ChatLimit: utils.NewBasicRateLimit(cfg.RateLimit.RequestsPerMinute, time.Minute, "chat"),
		Relay: llm.RelayConfig{
			Model:           cfg.LLM.Model,
			SystemPrompt:    llm.BuildSystemPrompt(cfg.Assistant.OwnerName, knowledge.Read(tools.DocAbout), registry),
			MaxTokens:       cfg.LLM.MaxTokens,
			MaxRounds:       cfg.LLM.MaxToolRounds,
			ToolConcurrency: cfg.LLM.ToolConcurrency,
		},
		Framing: stream.Framing(cfg.Stream.Framing),
		Logger:  logger,
	})

	a.initializeRoutes()
	return a
}

func (a *App) initializeRoutes() {
	a.Router.Use(a.requestLogging, a.cors)
	a.Router.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)

	api := a.Router.PathPrefix("/api").Subrouter()
	a.LLM.RegisterHandlers(api)
	api.Use(mux.CORSMethodMiddleware(api))
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.StatusResponse{
		Status:        "ok",
		Provider:      string(a.LLM.Service.ProviderName()),
		ActiveStreams: a.Streams.Len(),
		Usage:         a.LLM.Service.Usage(),
	})
}

// Serve listens on the configured address until ctx is cancelled, then
// cancels open streams and drains the server.
func (a *App) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.config.Server.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go a.Limiter.StartPruning(ctx, limiterPruneInterval, limiterIdleTimeout)

	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", server.Addr).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listening on %s: %w", server.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down...")
	if n := a.Streams.CancelAll(); n > 0 {
		a.logger.WithField("streams", n).Info("Cancelled open streams")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.logger.Info("Server gracefully stopped")
	return nil
}
