package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/archil-l/archil-io-v2/internal/auth"
	"github.com/archil-l/archil-io-v2/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretStoreSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"secret":"from-file"}`), 0o600))

	store, id, err := secretStore(context.Background(), config.AuthConfig{SecretFile: path, Secret: "ignored"})
	require.NoError(t, err)
	assert.IsType(t, auth.FileSecretStore{}, store)
	assert.Equal(t, path, id)

	store, _, err = secretStore(context.Background(), config.AuthConfig{Secret: "dev"})
	require.NoError(t, err)
	assert.IsType(t, &auth.StaticSecretStore{}, store)

	_, _, err = secretStore(context.Background(), config.AuthConfig{})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewIssuerUsesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Secret = "dev"
	cfg.Auth.Issuer = "custom"

	issuer, err := newIssuer(context.Background(), cfg)
	require.NoError(t, err)

	token, err := issuer.Token(context.Background())
	require.NoError(t, err)
	claims, err := auth.ParseToken(token, []byte("dev"))
	require.NoError(t, err)
	assert.Equal(t, "custom", claims.Issuer)
}
