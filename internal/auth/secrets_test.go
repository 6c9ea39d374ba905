package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsManager struct {
	gotID string
	out   *secretsmanager.GetSecretValueOutput
	err   error
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.gotID = aws.ToString(in.SecretId)
	return f.out, f.err
}

func TestSecretsManagerStore(t *testing.T) {
	api := &fakeSecretsManager{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"secret":"sm"}`)}}
	store := &SecretsManagerStore{client: api}

	issuer := NewIssuer(store, "arn:aws:secretsmanager:us-east-1:123:secret:jwt")
	secret, err := issuer.Secret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("sm"), secret)
	assert.Equal(t, "arn:aws:secretsmanager:us-east-1:123:secret:jwt", api.gotID)
}

func TestSecretsManagerStoreErrors(t *testing.T) {
	store := &SecretsManagerStore{client: &fakeSecretsManager{err: errors.New("AccessDenied")}}
	_, err := store.FetchSecret(context.Background(), "id")
	assert.ErrorIs(t, err, ErrSecretUnavailable)

	store = &SecretsManagerStore{client: &fakeSecretsManager{out: &secretsmanager.GetSecretValueOutput{}}}
	_, err = store.FetchSecret(context.Background(), "id")
	assert.ErrorIs(t, err, ErrSecretUnavailable)
}

func TestStaticSecretStoreEscapes(t *testing.T) {
	record, err := NewStaticSecretStore(`quo"te\`).FetchSecret(context.Background(), "")
	require.NoError(t, err)

	secret, err := ParseSecretRecord(record)
	require.NoError(t, err)
	assert.Equal(t, `quo"te\`, string(secret))
}
