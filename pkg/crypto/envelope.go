package crypto

import (
	"encoding/json"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// EnvelopeStage identifies which step of the envelope pipeline failed.
type EnvelopeStage string

const (
	StageSerialize EnvelopeStage = "serialize"
	StageEncrypt   EnvelopeStage = "encrypt"
	StageSign      EnvelopeStage = "sign"
	StageVerify    EnvelopeStage = "verify"
	StageDecrypt   EnvelopeStage = "decrypt"
	StageDecode    EnvelopeStage = "decode"
)

// EnvelopeError is a stage-tagged failure from the envelope codec. The codec
// never partially succeeds: any stage error aborts the whole operation.
type EnvelopeError struct {
	Stage EnvelopeStage
	Err   error
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("envelope %s: %v", e.Stage, e.Err)
}

func (e *EnvelopeError) Unwrap() error {
	return e.Err
}

func envelopeErr(stage EnvelopeStage, err error) *EnvelopeError {
	return &EnvelopeError{Stage: stage, Err: err}
}

// Envelope implements the counterparty's mandated security wrapping:
// outbound payloads are JWE-encrypted (RSA-OAEP-256 key wrap, A256GCM
// content) under the counterparty's public key, then the compact JWE string
// is JWS-signed (RS256, cty=JWE) with the client's private key. Inbound
// tokens reverse the process, signature verification strictly first - an
// unverified token is never decrypted.
//
// All operations are pure and safe for concurrent use; the underlying key
// material is read-only after construction.
type Envelope struct {
	keys      *KeyMaterial
	encrypter jose.Encrypter
	signer    jose.Signer
}

// NewEnvelope builds the codec from key material. Construction fails when
// the key material cannot drive the required algorithms; that failure is
// fatal to startup, not recoverable per-request.
func NewEnvelope(keys *KeyMaterial) (*Envelope, error) {
	encrypter, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.RSA_OAEP_256, Key: keys.CounterpartyPublicKey},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("build encrypter: %w", err)
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: keys.ClientPrivateKey},
		&jose.SignerOptions{
			ExtraHeaders: map[jose.HeaderKey]interface{}{
				jose.HeaderContentType: "JWE",
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}

	return &Envelope{keys: keys, encrypter: encrypter, signer: signer}, nil
}

// EncryptAndSign serializes the payload, encrypts it into a compact JWE
// token, and signs the raw token bytes into a compact JWS. The returned JWS
// compact string is the body sent to the counterparty.
func (e *Envelope) EncryptAndSign(payload interface{}) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", envelopeErr(StageSerialize, err)
	}

	jwe, err := e.encrypter.Encrypt(plaintext)
	if err != nil {
		return "", envelopeErr(StageEncrypt, err)
	}
	jweCompact, err := jwe.CompactSerialize()
	if err != nil {
		return "", envelopeErr(StageEncrypt, err)
	}

	jws, err := e.signer.Sign([]byte(jweCompact))
	if err != nil {
		return "", envelopeErr(StageSign, err)
	}
	jwsCompact, err := jws.CompactSerialize()
	if err != nil {
		return "", envelopeErr(StageSign, err)
	}

	return jwsCompact, nil
}

// VerifyAndDecrypt verifies the JWS signature with the counterparty's public
// key, decrypts the extracted JWE with the client's private key, and decodes
// the plaintext preserving wire field order. Any tampered byte fails at the
// verify stage; decryption is never attempted on an unverified token.
func (e *Envelope) VerifyAndDecrypt(jwsCompact string) (interface{}, error) {
	plaintext, err := e.verifyAndDecryptBytes(jwsCompact)
	if err != nil {
		return nil, err
	}

	payload, err := DecodeOrdered(plaintext)
	if err != nil {
		return nil, envelopeErr(StageDecode, err)
	}
	return payload, nil
}

func (e *Envelope) verifyAndDecryptBytes(jwsCompact string) ([]byte, error) {
	jws, err := jose.ParseSigned(jwsCompact, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return nil, envelopeErr(StageVerify, err)
	}

	jweBytes, err := jws.Verify(e.keys.CounterpartyPublicKey)
	if err != nil {
		return nil, envelopeErr(StageVerify, err)
	}

	jwe, err := jose.ParseEncrypted(
		string(jweBytes),
		[]jose.KeyAlgorithm{jose.RSA_OAEP_256},
		[]jose.ContentEncryption{jose.A256GCM},
	)
	if err != nil {
		return nil, envelopeErr(StageDecrypt, err)
	}

	plaintext, err := jwe.Decrypt(e.keys.ClientPrivateKey)
	if err != nil {
		return nil, envelopeErr(StageDecrypt, err)
	}

	return plaintext, nil
}
