// Package auth issues and verifies the short-lived HS256 tokens that gate the
// chat relay, and fetches the signing secret from a SecretStore.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// IssuedToken is a signed token together with its expiry.
type IssuedToken struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expiry describes the currently cached token.
type Expiry struct {
	ExpiresIn time.Duration
	ExpiresAt time.Time
}

// Issuer mints tokens and caches the latest one until it is within the
// refresh threshold of expiring. The signing secret is fetched once per
// process; a failed fetch is not cached.
type Issuer struct {
	store    SecretStore
	secretID string

	issuer           string
	subject          string
	lifetime         time.Duration
	refreshThreshold time.Duration
	now              func() time.Time

	secretMu sync.Mutex
	secret   []byte

	mu      sync.RWMutex
	current IssuedToken
}

// IssuerOption customizes an Issuer.
type IssuerOption func(*Issuer)

// WithLifetime sets the token lifetime.
func WithLifetime(d time.Duration) IssuerOption {
	return func(i *Issuer) { i.lifetime = d }
}

// WithRefreshThreshold sets how close to expiry a cached token is replaced.
func WithRefreshThreshold(d time.Duration) IssuerOption {
	return func(i *Issuer) { i.refreshThreshold = d }
}

// WithIdentity sets the iss and sub claims.
func WithIdentity(issuer, subject string) IssuerOption {
	return func(i *Issuer) {
		i.issuer = issuer
		i.subject = subject
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an issuer reading the secret secretID from store.
func NewIssuer(store SecretStore, secretID string, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		store:            store,
		secretID:         secretID,
		issuer:           DefaultIssuer,
		subject:          DefaultSubject,
		lifetime:         DefaultTokenLifetime,
		refreshThreshold: DefaultRefreshThreshold,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Secret returns the signing secret, fetching it on first use.
func (i *Issuer) Secret(ctx context.Context) ([]byte, error) {
	i.secretMu.Lock()
	defer i.secretMu.Unlock()

	if i.secret != nil {
		return i.secret, nil
	}

	record, err := i.store.FetchSecret(ctx, i.secretID)
	if err != nil {
		if errors.Is(err, ErrSecretUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSecretUnavailable, err)
	}

	secret, err := ParseSecretRecord(record)
	if err != nil {
		return nil, err
	}

	i.secret = secret
	return secret, nil
}

// Token returns a valid signed token, minting a new one when the cached
// token is missing or about to expire.
func (i *Issuer) Token(ctx context.Context) (string, error) {
	issued, err := i.Issue(ctx)
	if err != nil {
		return "", err
	}
	return issued.Token, nil
}

// Issue is Token plus the expiry of the returned token.
func (i *Issuer) Issue(ctx context.Context) (IssuedToken, error) {
	i.mu.RLock()
	current := i.current
	i.mu.RUnlock()

	if i.fresh(current, i.now()) {
		return current, nil
	}

	secret, err := i.Secret(ctx)
	if err != nil {
		return IssuedToken{}, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	if i.fresh(i.current, now) {
		return i.current, nil
	}

	claims := NewClaims(i.issuer, i.subject, now, i.lifetime)
	signed, err := SignToken(claims, secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("signing token: %w", err)
	}

	i.current = IssuedToken{
		Token:     signed,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	return i.current, nil
}

// Expiry reports the cached token's remaining lifetime. ok is false before
// the first token is minted.
func (i *Issuer) Expiry() (exp Expiry, ok bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.current.Token == "" {
		return Expiry{}, false
	}
	return Expiry{
		ExpiresIn: i.current.ExpiresAt.Sub(i.now()),
		ExpiresAt: i.current.ExpiresAt,
	}, true
}

// Remaining is how long t stays valid by the issuer's clock.
func (i *Issuer) Remaining(t IssuedToken) time.Duration {
	return t.ExpiresAt.Sub(i.now())
}

func (i *Issuer) fresh(t IssuedToken, now time.Time) bool {
	return t.Token != "" && t.ExpiresAt.Sub(now) > i.refreshThreshold
}
