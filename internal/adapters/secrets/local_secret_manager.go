package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
)

// localSecretManager implements SecretManager against the local filesystem.
// Development only: production deployments load key material from AWS
// Secrets Manager or Vault. Secret values are never logged, only paths.
type localSecretManager struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalSecretManager creates a filesystem-backed secret manager rooted at basePath
func NewLocalSecretManager(basePath string, logger *zap.Logger) ports.SecretManager {
	return &localSecretManager{
		basePath: basePath,
		logger:   logger,
	}
}

// GetSecret reads a secret file relative to the base directory. Files may be
// plain text (a PEM block, a hex key) or a JSON document with a "value" field.
func (m *localSecretManager) GetSecret(ctx context.Context, secretPath string) (*ports.Secret, error) {
	filePath := filepath.Join(m.basePath, secretPath)

	m.logger.Debug("reading secret from filesystem",
		zap.String("path", secretPath),
	)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("secret not found: %s", secretPath)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var wrapped struct {
		Value     string            `json:"value"`
		Tags      map[string]string `json:"tags"`
		CreatedAt string            `json:"created_at"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Value != "" {
		return &ports.Secret{
			Value:     wrapped.Value,
			Version:   "v1",
			Metadata:  wrapped.Tags,
			CreatedAt: wrapped.CreatedAt,
		}, nil
	}

	// plain text, e.g. a raw PEM file
	return &ports.Secret{
		Value:   string(data),
		Version: "v1",
	}, nil
}
