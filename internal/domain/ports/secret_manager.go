package ports

import "context"

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string            // The secret value (PEM, passphrase, hex key)
	Version   string            // Secret version identifier
	Metadata  map[string]string // Additional secret metadata
	CreatedAt string            // When this version was created
}

// SecretManager defines the port for retrieving credential material from a
// secret management service. Backends: AWS Secrets Manager, HashiCorp Vault,
// local filesystem (development only). Implementations authenticate with the
// backend and may cache values; key material does not rotate within a process
// lifetime, so callers load once at startup.
type SecretManager interface {
	// GetSecret retrieves a secret by its path/name. Path format depends on
	// the backend:
	//   - AWS: "axis-payout/certs/client-private-key"
	//   - Vault: "secret/data/axis-payout/certs/client-private-key"
	//   - Local: relative file path under the configured base directory
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
