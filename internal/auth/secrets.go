package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/tidwall/gjson"
)

var (
	// ErrSecretUnavailable is returned when the secret store cannot be read
	ErrSecretUnavailable = errors.New("signing secret unavailable")

	// ErrMalformedSecret is returned when the record has no usable secret field
	ErrMalformedSecret = errors.New("secret record has no secret field")
)

// SecretStore fetches the raw JSON record {"secret": "..."} identified by id.
type SecretStore interface {
	FetchSecret(ctx context.Context, id string) ([]byte, error)
}

// ParseSecretRecord extracts the signing secret from a store record.
func ParseSecretRecord(record []byte) ([]byte, error) {
	if !gjson.ValidBytes(record) {
		return nil, fmt.Errorf("%w: record is not JSON", ErrMalformedSecret)
	}
	secret := gjson.GetBytes(record, "secret")
	if secret.Type != gjson.String || secret.String() == "" {
		return nil, ErrMalformedSecret
	}
	return []byte(secret.String()), nil
}

// secretsManagerAPI is the subset of the Secrets Manager client we call.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerStore reads records from AWS Secrets Manager; id is the
// secret ARN or name.
type SecretsManagerStore struct {
	client secretsManagerAPI
}

// NewSecretsManagerStore loads the default AWS configuration chain.
func NewSecretsManagerStore(ctx context.Context, region string) (*SecretsManagerStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SecretsManagerStore{client: secretsmanager.NewFromConfig(cfg)}, nil
}

// FetchSecret implements SecretStore.
func (s *SecretsManagerStore) FetchSecret(ctx context.Context, id string) ([]byte, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretUnavailable, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("%w: secret %s has no string value", ErrSecretUnavailable, id)
	}
	return []byte(aws.ToString(out.SecretString)), nil
}

// FileSecretStore reads records from local JSON files; id is the path.
type FileSecretStore struct{}

// FetchSecret implements SecretStore.
func (FileSecretStore) FetchSecret(_ context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretUnavailable, err)
	}
	return data, nil
}

// StaticSecretStore serves one in-memory secret regardless of id.
type StaticSecretStore struct {
	record []byte
}

// NewStaticSecretStore wraps a raw secret into a record.
func NewStaticSecretStore(secret string) *StaticSecretStore {
	record, _ := json.Marshal(map[string]string{"secret": secret})
	return &StaticSecretStore{record: record}
}

// FetchSecret implements SecretStore.
func (s *StaticSecretStore) FetchSecret(context.Context, string) ([]byte, error) {
	return s.record, nil
}
