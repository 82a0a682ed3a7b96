package crypto

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// KeyMaterial holds the long-lived cryptographic material for the
// counterparty channel: the client's RSA private key (sign outbound, decrypt
// inbound), the counterparty's RSA public key (encrypt outbound, verify
// inbound), and the shared symmetric secret for the push-callback channel.
//
// It is constructed exactly once during startup and passed by reference into
// the envelope codec and callback decryptor. Values are immutable for the
// process lifetime; key material never rotates within a running process.
// A corrupt or unreadable key container is fatal to startup, not recoverable
// per-request.
type KeyMaterial struct {
	ClientPrivateKey      *rsa.PrivateKey
	CounterpartyPublicKey *rsa.PublicKey
	CallbackSecret        string
}

// NewKeyMaterial builds key material from a PEM private key (PKCS#1 or
// PKCS#8), the counterparty's PEM certificate, and the callback shared
// secret.
func NewKeyMaterial(privateKeyPEM, counterpartyCertPEM []byte, callbackSecret string) (*KeyMaterial, error) {
	priv, err := parseRSAPrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("client private key: %w", err)
	}

	pub, err := parseCertificatePublicKey(counterpartyCertPEM)
	if err != nil {
		return nil, fmt.Errorf("counterparty certificate: %w", err)
	}

	return &KeyMaterial{
		ClientPrivateKey:      priv,
		CounterpartyPublicKey: pub,
		CallbackSecret:        callbackSecret,
	}, nil
}

// NewKeyMaterialFromP12 builds key material from a PKCS#12 keystore (the
// credential container the counterparty issues) plus the counterparty's PEM
// certificate.
func NewKeyMaterialFromP12(p12Data []byte, password string, counterpartyCertPEM []byte, callbackSecret string) (*KeyMaterial, error) {
	key, _, err := pkcs12.Decode(p12Data, password)
	if err != nil {
		return nil, fmt.Errorf("decode PKCS#12 keystore: %w", err)
	}

	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PKCS#12 keystore does not contain an RSA private key")
	}

	pub, err := parseCertificatePublicKey(counterpartyCertPEM)
	if err != nil {
		return nil, fmt.Errorf("counterparty certificate: %w", err)
	}

	return &KeyMaterial{
		ClientPrivateKey:      priv,
		CounterpartyPublicKey: pub,
		CallbackSecret:        callbackSecret,
	}, nil
}

// CallbackKey derives the fixed-length symmetric key for the callback
// channel. When the shared secret is itself a hex encoding of a valid AES
// key it is used directly; otherwise the secret string is MD5-hashed down to
// 16 bytes, matching the counterparty's reference derivation.
func (k *KeyMaterial) CallbackKey() []byte {
	return deriveCallbackKey(k.CallbackSecret)
}

func parseRSAPrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return key, nil
}

// parseCertificatePublicKey accepts either an X.509 certificate PEM (the form
// the counterparty distributes) or a bare PKIX public key PEM.
func parseCertificatePublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if block.Type == "CERTIFICATE" {
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("certificate does not carry an RSA public key")
		}
		return pub, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return pub, nil
}

// isHexKey reports whether s is a hex string decoding to a valid AES key length.
func isHexKey(s string) bool {
	b, err := hex.DecodeString(s)
	if err != nil {
		return false
	}
	switch len(b) {
	case 16, 24, 32:
		return true
	}
	return false
}
