package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindAuth             ErrorKind = "auth_error"
	KindRateLimited      ErrorKind = "rate_limited"
	KindModelUnavailable ErrorKind = "model_unavailable"
	KindTimeout          ErrorKind = "timeout"
	KindNetwork          ErrorKind = "network_error"
	KindOverloaded       ErrorKind = "service_overloaded"
	KindQuota            ErrorKind = "quota_exceeded"
	KindUnknown          ErrorKind = "unknown"
)

var userMessages = map[ErrorKind]string{
	KindAuth:             "The assistant is misconfigured and cannot reach the model provider.",
	KindRateLimited:      "Too many requests right now. Please try again in a moment.",
	KindModelUnavailable: "The model is currently unavailable. Please try again later.",
	KindTimeout:          "The model took too long to respond. Please try again.",
	KindNetwork:          "Could not reach the model provider. Please try again.",
	KindOverloaded:       "The model provider is overloaded. Please try again shortly.",
	KindQuota:            "The assistant has reached its usage quota.",
	KindUnknown:          "Something went wrong while generating a response.",
}

var (
	// ErrToolRoundLimit is reported when the model keeps calling tools past the round cap
	ErrToolRoundLimit = errors.New("tool call round limit reached")

	// ErrReportedInBand wraps failures already sent to the client as an error event
	ErrReportedInBand = errors.New("reported in-band")

	// ErrProviderNotConfigured is returned when the selected provider has no API key
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrProviderNotSupported is returned when the requested provider is not supported
	ErrProviderNotSupported = errors.New("provider not supported")
)

// ProviderError is a classified provider failure. Error() includes the raw
// cause and is meant for logs; clients only ever see UserMessage().
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// UserMessage is the client-safe description of the failure.
func (e *ProviderError) UserMessage() string {
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

// TransportError reports that the client side of the stream went away.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "stream transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ClassifyError maps any provider-side failure onto an ErrorKind.
func ClassifyError(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return &ProviderError{
			Kind:       refineKind(kindForStatus(anthropicErr.StatusCode), err.Error()),
			StatusCode: anthropicErr.StatusCode,
			Err:        err,
		}
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		kind := kindForStatus(openaiErr.StatusCode)
		if openaiErr.Code == "insufficient_quota" {
			kind = KindQuota
		}
		return &ProviderError{Kind: kind, StatusCode: openaiErr.StatusCode, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Kind: KindTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &ProviderError{Kind: KindTimeout, Err: err}
		}
		return &ProviderError{Kind: KindNetwork, Err: err}
	}

	return &ProviderError{Kind: kindFromMessage(err.Error()), Err: err}
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusPaymentRequired:
		return KindQuota
	case status == http.StatusNotFound:
		return KindModelUnavailable
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == 529:
		return KindOverloaded
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable:
		return KindModelUnavailable
	}
	return KindUnknown
}

// refineKind looks at the error body when the status alone is ambiguous.
func refineKind(kind ErrorKind, msg string) ErrorKind {
	if kind != KindUnknown {
		return kind
	}
	return kindFromMessage(msg)
}

// kindFromMessage classifies errors that only carry text, such as error
// events received in the middle of a stream.
func kindFromMessage(msg string) ErrorKind {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "overloaded"):
		return KindOverloaded
	case strings.Contains(msg, "rate_limit"), strings.Contains(msg, "rate limit"):
		return KindRateLimited
	case strings.Contains(msg, "credit balance"), strings.Contains(msg, "quota"), strings.Contains(msg, "billing"):
		return KindQuota
	case strings.Contains(msg, "authentication"), strings.Contains(msg, "permission_error"), strings.Contains(msg, "api key"):
		return KindAuth
	case strings.Contains(msg, "not_found_error"), strings.Contains(msg, "model_not_found"):
		return KindModelUnavailable
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return KindTimeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"), strings.Contains(msg, "no such host"):
		return KindNetwork
	}
	return KindUnknown
}
