package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestKindForStatus(t *testing.T) {
	tests := map[int]ErrorKind{
		401: KindAuth,
		403: KindAuth,
		402: KindQuota,
		404: KindModelUnavailable,
		408: KindTimeout,
		429: KindRateLimited,
		502: KindModelUnavailable,
		503: KindModelUnavailable,
		504: KindTimeout,
		529: KindOverloaded,
		500: KindUnknown,
		400: KindUnknown,
	}
	for status, want := range tests {
		assert.Equal(t, want, kindForStatus(status), "status %d", status)
	}
}

func TestClassifyError(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))

	existing := &ProviderError{Kind: KindQuota, Err: errors.New("x")}
	assert.Same(t, existing, ClassifyError(fmt.Errorf("wrapped: %w", existing)))

	tests := []struct {
		err  error
		want ErrorKind
	}{
		{context.DeadlineExceeded, KindTimeout},
		{fmt.Errorf("read: %w", timeoutErr{}), KindTimeout},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, KindNetwork},
		{errors.New(`{"type":"overloaded_error","message":"Overloaded"}`), KindOverloaded},
		{errors.New("rate_limit_error: slow down"), KindRateLimited},
		{errors.New("Your credit balance is too low"), KindQuota},
		{errors.New("authentication_error: invalid x-api-key"), KindAuth},
		{errors.New("model_not_found"), KindModelUnavailable},
		{errors.New("something odd"), KindUnknown},
	}
	for _, tt := range tests {
		got := ClassifyError(tt.err)
		require.NotNil(t, got)
		assert.Equal(t, tt.want, got.Kind, tt.err.Error())
		assert.ErrorIs(t, got, tt.err)
	}
}

func TestUserMessageHidesCause(t *testing.T) {
	err := ClassifyError(errors.New("authentication_error: key sk-ant-123 is invalid"))

	assert.Contains(t, err.Error(), "sk-ant-123")
	assert.NotContains(t, err.UserMessage(), "sk-ant-123")
	assert.Equal(t, userMessages[KindAuth], err.UserMessage())

	unknown := &ProviderError{Kind: "mystery"}
	assert.Equal(t, userMessages[KindUnknown], unknown.UserMessage())
}
