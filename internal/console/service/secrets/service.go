// Package secrets manages app-scoped encrypted configuration values.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/domain"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/repository"
	"github.com/xXMohitXx/Dead-Simple-Infra/pkg/crypto"
)

// ErrInvalidInput marks request validation failures.
var ErrInvalidInput = errors.New("secrets: invalid input")

// Service encrypts secret values at rest with a console-wide master
// key. Plaintext is only held while serving a create request.
type Service struct {
	apps      repository.AppRepository
	secrets   repository.SecretRepository
	masterKey string
	logger    *slog.Logger
}

// New returns a secret service.
func New(apps repository.AppRepository, secrets repository.SecretRepository, masterKey string, logger *slog.Logger) Service {
	return Service{
		apps:      apps,
		secrets:   secrets,
		masterKey: masterKey,
		logger:    logger,
	}
}

// Create encrypts and stores one secret for an app.
func (s Service) Create(ctx context.Context, appID, key, value string) (*domain.Secret, error) {
	key = strings.TrimSpace(key)
	if key == "" || value == "" {
		return nil, fmt.Errorf("%w: key and value are required", ErrInvalidInput)
	}
	if _, err := s.apps.GetAppByID(ctx, appID); err != nil {
		return nil, err
	}
	encrypted, err := crypto.EncryptSecret(s.masterKey, value)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}
	secret := &domain.Secret{
		ID:             uuid.NewString(),
		AppID:          appID,
		Key:            key,
		EncryptedValue: encrypted,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.secrets.CreateSecret(ctx, secret); err != nil {
		return nil, err
	}
	s.logger.Info("secret created", "app_id", appID, "key", key)
	return secret, nil
}

// List returns the secret keys for an app. Values stay encrypted and
// are never returned through the API.
func (s Service) List(ctx context.Context, appID string) ([]domain.Secret, error) {
	if _, err := s.apps.GetAppByID(ctx, appID); err != nil {
		return nil, err
	}
	return s.secrets.ListSecretsByApp(ctx, appID)
}

// Delete removes one secret from an app.
func (s Service) Delete(ctx context.Context, appID, secretID string) error {
	if err := s.secrets.DeleteSecret(ctx, appID, secretID); err != nil {
		return err
	}
	s.logger.Info("secret deleted", "app_id", appID, "secret_id", secretID)
	return nil
}

// Reveal decrypts an app's stored values for injection into the deploy
// command's container environment. Not exposed over the API.
func (s Service) Reveal(ctx context.Context, appID string) (map[string]string, error) {
	stored, err := s.secrets.ListSecretsByApp(ctx, appID)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(stored))
	for _, secret := range stored {
		plain, err := crypto.DecryptSecret(s.masterKey, secret.EncryptedValue)
		if err != nil {
			return nil, fmt.Errorf("decrypt secret %s: %w", secret.Key, err)
		}
		values[secret.Key] = plain
	}
	return values, nil
}
