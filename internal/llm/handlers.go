package llm

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/archil-l/archil-io-v2/internal/auth"
	"github.com/archil-l/archil-io-v2/internal/captcha"
	"github.com/archil-l/archil-io-v2/internal/conn"
	"github.com/archil-l/archil-io-v2/internal/logging"
	"github.com/archil-l/archil-io-v2/internal/stream"
	"github.com/archil-l/archil-io-v2/internal/tools"
	"github.com/archil-l/archil-io-v2/pkg/models"
	"github.com/archil-l/archil-io-v2/pkg/utils"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// maxRequestBytes bounds the chat request body.
const maxRequestBytes = 1 << 20

// ServerDeps are the collaborators of the LLM endpoints. Captcha and
// Limiter may be nil.
type ServerDeps struct {
	Service   *Service
	Issuer    *auth.Issuer
	Registry  *tools.Registry
	Streams   *conn.Pool
	Captcha   captcha.Verifier
	Limiter   *utils.RateLimiter
	ChatLimit utils.RateLimit
	Relay     RelayConfig
	Framing   stream.Framing
	Logger    logrus.FieldLogger
}

// ServerState holds the state for the LLM server
type ServerState struct {
	ServerDeps
}

// NewLLMServerState creates a new LLM server state
func NewLLMServerState(deps ServerDeps) *ServerState {
	if deps.Framing == "" {
		deps.Framing = stream.FramingEvent
	}
	return &ServerState{ServerDeps: deps}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg, Details: details})
}

func (s *ServerState) requestLogger(r *http.Request) (string, *logrus.Entry) {
	requestID := logging.RequestID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return requestID, logging.ForRequest(s.Logger, requestID, r)
}

// decodeHistory reads the request body into a validated history. The
// returned strings are the client-facing error and details.
func decodeHistory(w http.ResponseWriter, r *http.Request) ([]models.Message, string, string) {
	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		return nil, "Invalid request body", err.Error()
	}
	if !gjson.ParseBytes(req.Messages).IsArray() {
		return nil, "messages array is required", ""
	}

	var history []models.Message
	if err := json.Unmarshal(req.Messages, &history); err != nil {
		return nil, "Invalid messages", err.Error()
	}
	if err := models.ValidateHistory(history); err != nil {
		return nil, "Invalid messages", err.Error()
	}
	return history, "", ""
}

func captchaDetails(err error) string {
	switch {
	case errors.Is(err, captcha.ErrMissingToken):
		return "captchaToken is required to start a conversation"
	case errors.Is(err, captcha.ErrRejected):
		return "captcha token is invalid or expired"
	default:
		return "captcha service unavailable"
	}
}

// HandleAgent handles the streaming chat endpoint
func (s *ServerState) HandleAgent(w http.ResponseWriter, r *http.Request) {
	requestID, logger := s.requestLogger(r)
	clientIP := utils.ClientIP(r)
	logger = logger.WithField("client_ip", clientIP)

	if err := CheckRateLimit(s.Limiter, s.ChatLimit, clientIP); err != nil {
		logger.WithError(err).Warn("Rejecting chat request")
		SetErrorResponseHeaders(w, err)
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", "")
		return
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		writeError(w, http.StatusUnauthorized, "Missing Authorization header", "")
		return
	}

	secret, err := s.Issuer.Secret(r.Context())
	if err != nil {
		logger.WithError(err).Error("Failed to load signing secret")
		writeError(w, http.StatusInternalServerError, "Server configuration error", "")
		return
	}

	verification := auth.Verify(header, secret)
	if !verification.Valid {
		logger.WithField("reason", verification.Reason).Info("Rejecting token")
		if verification.Expired {
			SetErrorResponseHeaders(w, auth.ErrTokenExpired)
		}
		writeError(w, http.StatusUnauthorized, verification.Reason, "")
		return
	}

	history, msg, details := decodeHistory(w, r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg, details)
		return
	}

	if err := CheckCaptcha(r.Context(), s.Captcha, history, clientIP); err != nil {
		logger.WithError(err).Warn("CAPTCHA verification failed")
		writeError(w, http.StatusBadRequest, "CAPTCHA verification failed", captchaDetails(err))
		return
	}

	provider, err := s.Service.Provider()
	if err != nil {
		logger.WithError(err).Error("Completion provider unavailable")
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusInternalServerError, cfgErr.Error(), "")
		} else {
			writeError(w, http.StatusInternalServerError, "Server configuration error", "")
		}
		return
	}

	ctx, release, err := s.Streams.Open(r.Context(), conn.StreamID(requestID), clientIP)
	if err != nil {
		logger.WithError(err).Warn("Rejecting chat request")
		SetErrorResponseHeaders(w, err)
		writeError(w, http.StatusTooManyRequests, "Too many concurrent requests", "")
		return
	}
	defer release()

	logger.WithField("messages", len(history)).Info("Starting chat stream")
	start := time.Now()

	framer := stream.NewFramer(w, s.Framing)
	relay := NewRelay(provider, s.Registry, s.Relay, s.Service, logger)
	err = relay.Run(ctx, history, framer)
	_ = framer.Close()

	logger = logger.WithField("duration", time.Since(start))
	var transportErr *TransportError
	switch {
	case err == nil:
		logger.Info("Chat stream complete")
	case errors.As(err, &transportErr):
		// Client is gone; nothing more can be written.
	case errors.Is(err, ErrReportedInBand):
		logger.WithError(err).Warn("Chat stream ended with an error event")
	case !framer.Started():
		var providerErr *ProviderError
		if errors.As(err, &providerErr) {
			writeError(w, http.StatusInternalServerError, providerErr.UserMessage(), string(providerErr.Kind))
		} else {
			writeError(w, http.StatusInternalServerError, "Internal server error", "")
		}
	default:
		logger.WithError(err).Error("Chat stream failed")
	}
}

// HandlePreflight answers CORS preflight requests; the headers are set by
// the router middleware.
func (s *ServerState) HandlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandleToken issues a JWT for the chat endpoint
func (s *ServerState) HandleToken(w http.ResponseWriter, r *http.Request) {
	_, logger := s.requestLogger(r)

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	issued, err := s.Issuer.Issue(r.Context())
	if err != nil {
		logger.WithError(err).Error("Failed to issue token")
		writeError(w, http.StatusInternalServerError, "Failed to generate JWT token", "")
		return
	}

	writeJSON(w, http.StatusOK, models.TokenResponse{
		Token:     issued.Token,
		ExpiresIn: int64(s.Issuer.Remaining(issued).Seconds()),
		ExpiresAt: issued.ExpiresAt.Unix(),
	})
}

// RegisterHandlers registers the LLM handlers with a router
func (s *ServerState) RegisterHandlers(router *mux.Router) {
	router.HandleFunc("/agent", s.HandleAgent).Methods(http.MethodPost)
	router.HandleFunc("/agent", s.HandlePreflight).Methods(http.MethodOptions)
	router.HandleFunc("/jwt-token", s.HandleToken).Methods(http.MethodGet)

	rejectOtherMethods(router, "/agent", http.MethodPost, http.MethodOptions)
	rejectOtherMethods(router, "/jwt-token", http.MethodGet)
}

// rejectOtherMethods answers 405 for requests to path using any method not
// in allowed. It matches with a MatcherFunc so the route carries no method
// list of its own and CORSMethodMiddleware keeps advertising only allowed.
func rejectOtherMethods(router *mux.Router, path string, allowed ...string) {
	router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	}).MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
		return !slices.Contains(allowed, r.Method)
	})
}
