// Package captcha verifies Cloudflare Turnstile tokens.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/archil-l/archil-io-v2/pkg/utils"
)

// DefaultVerifyURL is Cloudflare's siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

var (
	// ErrMissingToken is returned when no token was supplied
	ErrMissingToken = errors.New("captcha token is required")

	// ErrRejected is returned when siteverify answers success=false
	ErrRejected = errors.New("captcha token rejected")

	// ErrUnavailable is returned when siteverify cannot be reached
	ErrUnavailable = errors.New("captcha verification unavailable")
)

// Verifier checks a CAPTCHA token submitted by remoteIP.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type siteverifyRequest struct {
	Secret   string `json:"secret"`
	Response string `json:"response"`
	RemoteIP string `json:"remoteip,omitempty"`
}

type siteverifyResponse struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
}

// Turnstile verifies tokens against the siteverify API.
type Turnstile struct {
	secret    string
	verifyURL string
	client    *http.Client
}

// NewTurnstile creates a verifier. An empty verifyURL selects
// DefaultVerifyURL and a nil client selects utils.DefaultHTTPClient.
func NewTurnstile(secret, verifyURL string, client *http.Client) *Turnstile {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	return &Turnstile{secret: secret, verifyURL: verifyURL, client: client}
}

// Verify returns nil when Cloudflare accepts token.
func (t *Turnstile) Verify(ctx context.Context, token, remoteIP string) error {
	if token == "" {
		return ErrMissingToken
	}

	var resp siteverifyResponse
	err := utils.PostJSON(ctx, t.client, t.verifyURL, siteverifyRequest{
		Secret:   t.secret,
		Response: token,
		RemoteIP: remoteIP,
	}, &resp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !resp.Success {
		if len(resp.ErrorCodes) == 0 {
			return ErrRejected
		}
		return fmt.Errorf("%w: %s", ErrRejected, strings.Join(resp.ErrorCodes, ", "))
	}
	return nil
}
