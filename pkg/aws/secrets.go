package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// DefaultSecretTTL is how long a fetched value is reused before Secrets
// Manager is asked again, so rotated credentials are eventually picked up.
const DefaultSecretTTL = 10 * time.Minute

// ErrSecretNotFound is returned when the secret does not exist or is empty.
var ErrSecretNotFound = errors.New("inventory secret not configured")

type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type cachedSecret struct {
	value     string
	fetchedAt time.Time
}

// SecretsClient reads this service's secrets, stored as "<prefix>/<KEY>"
// (for example "inventory/JWT_SECRET").
type SecretsClient struct {
	api    secretsAPI
	prefix string
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cachedSecret
}

func NewSecretsClient(cfg sdkaws.Config, prefix string) *SecretsClient {
	return newSecretsClient(secretsmanager.NewFromConfig(cfg), prefix)
}

func newSecretsClient(api secretsAPI, prefix string) *SecretsClient {
	return &SecretsClient{
		api:     api,
		prefix:  strings.Trim(prefix, "/"),
		ttl:     DefaultSecretTTL,
		now:     time.Now,
		entries: make(map[string]cachedSecret),
	}
}

// SecretID returns the Secrets Manager id for key.
func (s *SecretsClient) SecretID(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// GetSecret returns the value for key, served from cache while it is fresh.
func (s *SecretsClient) GetSecret(ctx context.Context, key string) (string, error) {
	id := s.SecretID(key)

	s.mu.Lock()
	entry, ok := s.entries[id]
	s.mu.Unlock()
	if ok && s.now().Sub(entry.fetchedAt) < s.ttl {
		return entry.value, nil
	}

	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(id)})
	if err != nil {
		var missing *types.ResourceNotFoundException
		if errors.As(err, &missing) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, id)
		}
		if ok {
			// Keep serving the last known value through a Secrets Manager outage.
			return entry.value, nil
		}
		return "", fmt.Errorf("reading inventory secret %s: %w", id, err)
	}
	value := sdkaws.ToString(out.SecretString)
	if value == "" {
		return "", fmt.Errorf("%w: %s has no string value", ErrSecretNotFound, id)
	}

	s.mu.Lock()
	s.entries[id] = cachedSecret{value: value, fetchedAt: s.now()}
	s.mu.Unlock()
	return value, nil
}
