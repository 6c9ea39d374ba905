package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/archil-l/archil-io-v2/internal/auth"
	"github.com/archil-l/archil-io-v2/internal/captcha"
	"github.com/archil-l/archil-io-v2/internal/conn"
	"github.com/archil-l/archil-io-v2/pkg/models"
	"github.com/archil-l/archil-io-v2/pkg/utils"
)

// ErrRateLimitExceeded is returned when a client exceeds the chat request limit
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// CheckRateLimit verifies the client hasn't exceeded the chat request limit
func CheckRateLimit(limiter *utils.RateLimiter, limit utils.RateLimit, clientIP string) error {
	if limiter == nil || limit == nil {
		return nil
	}
	if !limiter.Check(limit, clientIP) {
		return fmt.Errorf("%w: maximum %d requests per %s", ErrRateLimitExceeded, limit.Capacity(), limit.RefillDuration())
	}
	return nil
}

// IsConversationStart reports whether history is the opening message of a
// conversation, the only request that must carry a CAPTCHA token.
func IsConversationStart(history []models.Message) bool {
	return len(history) == 1 && history[0].Role == models.RoleUser
}

// CheckCaptcha verifies the CAPTCHA token of an opening request. Later
// requests of the same conversation pass through.
func CheckCaptcha(ctx context.Context, verifier captcha.Verifier, history []models.Message, clientIP string) error {
	if verifier == nil || !IsConversationStart(history) {
		return nil
	}

	var token string
	if meta := history[0].Metadata; meta != nil {
		token = meta.CaptchaToken
	}
	return verifier.Verify(ctx, token, clientIP)
}

// SetErrorResponseHeaders sets the appropriate headers for error responses
func SetErrorResponseHeaders(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		w.Header().Set("X-Token-Expired", "true")
	case errors.Is(err, ErrRateLimitExceeded), errors.Is(err, conn.ErrTooManyStreams):
		w.Header().Set("Retry-After", "60")
	}
}
