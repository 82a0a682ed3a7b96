package secrets

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"github.com/elevenpay/axis-payout-service/internal/config"
	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
	"github.com/elevenpay/axis-payout-service/pkg/crypto"
)

// LoadKeyMaterial assembles the envelope key material from the configured
// secret backend: the client signing/decryption key (PEM pair or a PKCS#12
// bundle), the counterparty certificate, and the callback secret. Called once
// at startup; a failure here is fatal.
func LoadKeyMaterial(ctx context.Context, sm ports.SecretManager, cfg config.SecretsConfig) (*crypto.KeyMaterial, error) {
	certSecret, err := sm.GetSecret(ctx, cfg.CounterpartyCertPath)
	if err != nil {
		return nil, fmt.Errorf("load counterparty certificate: %w", err)
	}
	callbackSecret, err := sm.GetSecret(ctx, cfg.CallbackSecretPath)
	if err != nil {
		return nil, fmt.Errorf("load callback secret: %w", err)
	}

	if cfg.ClientP12Path != "" {
		p12Secret, err := sm.GetSecret(ctx, cfg.ClientP12Path)
		if err != nil {
			return nil, fmt.Errorf("load client p12 bundle: %w", err)
		}
		// P12 bundles are binary, stored base64-encoded
		p12Data, err := base64.StdEncoding.DecodeString(p12Secret.Value)
		if err != nil {
			return nil, fmt.Errorf("client p12 bundle is not valid base64: %w", err)
		}

		passphrase := ""
		if cfg.ClientP12PassphrasePath != "" {
			passSecret, err := sm.GetSecret(ctx, cfg.ClientP12PassphrasePath)
			if err != nil {
				return nil, fmt.Errorf("load p12 passphrase: %w", err)
			}
			passphrase = passSecret.Value
		}
		return crypto.NewKeyMaterialFromP12(p12Data, passphrase, []byte(certSecret.Value), callbackSecret.Value)
	}

	keySecret, err := sm.GetSecret(ctx, cfg.ClientPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load client private key: %w", err)
	}
	return crypto.NewKeyMaterial([]byte(keySecret.Value), []byte(certSecret.Value), callbackSecret.Value)
}

// NewFromConfig selects and constructs the configured secret backend
func NewFromConfig(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretManager, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalSecretManager(cfg.LocalBasePath, logger), nil
	case "aws":
		awsCfg := DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		awsCfg.Profile = cfg.AWSProfile
		awsCfg.Endpoint = cfg.AWSEndpoint
		return NewAWSSecretsManagerAdapter(ctx, awsCfg, logger)
	case "vault":
		vaultCfg := DefaultVaultConfig(cfg.VaultAddress)
		vaultCfg.Token = cfg.VaultToken
		vaultCfg.MountPath = cfg.VaultMount
		return NewVaultAdapter(ctx, vaultCfg, logger)
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", cfg.Backend)
	}
}
