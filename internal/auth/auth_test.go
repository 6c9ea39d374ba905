package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	calls  atomic.Int32
	record []byte
	err    error
}

func (s *countingStore) FetchSecret(context.Context, string) ([]byte, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSignAndParseToken(t *testing.T) {
	secret := []byte("s3cret")
	claims := NewClaims(DefaultIssuer, DefaultSubject, time.Now(), time.Hour)

	signed, err := SignToken(claims, secret)
	require.NoError(t, err)

	parsed, err := ParseToken(signed, secret)
	require.NoError(t, err)
	assert.Equal(t, "archil-io-v2", parsed.Issuer)
	assert.Equal(t, "app", parsed.Subject)
	assert.NotEmpty(t, parsed.ID)
	assert.Equal(t, claims.ExpiresAt.Unix(), parsed.ExpiresAt.Unix())
}

func TestParseTokenRejects(t *testing.T) {
	secret := []byte("s3cret")

	expired, err := SignToken(NewClaims(DefaultIssuer, DefaultSubject, time.Now().Add(-2*time.Hour), time.Hour), secret)
	require.NoError(t, err)
	_, err = ParseToken(expired, secret)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// an expired token signed with another key is invalid, not expired
	_, err = ParseToken(expired, []byte("other"))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("not.a.jwt", secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, NewClaims(DefaultIssuer, DefaultSubject, time.Now(), time.Hour))
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(unsigned, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify(t *testing.T) {
	secret := []byte("s3cret")
	valid, err := SignToken(NewClaims(DefaultIssuer, DefaultSubject, time.Now(), time.Hour), secret)
	require.NoError(t, err)
	expired, err := SignToken(NewClaims(DefaultIssuer, DefaultSubject, time.Now().Add(-2*time.Hour), time.Hour), secret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		secret []byte
		valid  bool
		reason string
	}{
		{"valid", "Bearer " + valid, secret, true, ""},
		{"no scheme", valid, secret, false, ReasonMalformedHeader},
		{"wrong scheme", "Basic " + valid, secret, false, ReasonMalformedHeader},
		{"extra part", "Bearer " + valid + " extra", secret, false, ReasonMalformedHeader},
		{"empty token", "Bearer ", secret, false, ReasonMalformedHeader},
		{"expired", "Bearer " + expired, secret, false, ReasonExpired},
		{"no secret", "Bearer " + valid, nil, false, ReasonVerificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Verify(tt.header, tt.secret)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.reason, res.Reason)
			if tt.valid {
				require.NotNil(t, res.Claims)
				assert.Equal(t, DefaultSubject, res.Claims.Subject)
			}
		})
	}

	res := Verify("Bearer "+valid, []byte("wrong"))
	assert.False(t, res.Valid)
	assert.False(t, res.Expired)
	assert.Contains(t, res.Reason, ReasonInvalidPrefix)
}

func TestIssuerFetchesSecretOnce(t *testing.T) {
	store := &countingStore{record: []byte(`{"secret":"abc"}`)}
	issuer := NewIssuer(store, "arn:test")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := issuer.Token(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), store.calls.Load())

	secret, err := issuer.Secret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), secret)
}

func TestIssuerCachesAndRefreshes(t *testing.T) {
	clock := &fakeClock{now: time.Now().Truncate(time.Second)}
	issuer := NewIssuer(NewStaticSecretStore("abc"), "", WithClock(clock.Now))

	_, ok := issuer.Expiry()
	assert.False(t, ok)

	first, err := issuer.Issue(context.Background())
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	again, err := issuer.Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Token, again.Token)

	exp, ok := issuer.Expiry()
	require.True(t, ok)
	assert.Equal(t, 50*time.Minute, exp.ExpiresIn)
	assert.Equal(t, 50*time.Minute, issuer.Remaining(again))

	// inside the 5 minute refresh window
	clock.Advance(46 * time.Minute)
	refreshed, err := issuer.Issue(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, refreshed.Token)
	assert.True(t, refreshed.ExpiresAt.After(first.ExpiresAt))
	assert.Equal(t, clock.Now().Add(time.Hour), refreshed.ExpiresAt)
}

func TestIssuerSecretFailureNotCached(t *testing.T) {
	store := &countingStore{err: errors.New("throttled")}
	issuer := NewIssuer(store, "arn:test")

	_, err := issuer.Token(context.Background())
	require.ErrorIs(t, err, ErrSecretUnavailable)

	store.err = nil
	store.record = []byte(`{"secret":"abc"}`)
	_, err = issuer.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestIssuerMalformedRecord(t *testing.T) {
	for _, record := range []string{`{"other":"x"}`, `{"secret":""}`, `{"secret":42}`, `not json`} {
		issuer := NewIssuer(&countingStore{record: []byte(record)}, "id")
		_, err := issuer.Token(context.Background())
		assert.ErrorIs(t, err, ErrMalformedSecret, record)
	}
}

func TestFileSecretStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"secret":"from-file"}`), 0o600))

	issuer := NewIssuer(FileSecretStore{}, path)
	secret, err := issuer.Secret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("from-file"), secret)

	_, err = FileSecretStore{}.FetchSecret(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrSecretUnavailable)
}
