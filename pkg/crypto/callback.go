package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// callbackIV is the fixed initialization vector the counterparty's push
// mechanism uses for every message (00 01 .. 0F). The fixed IV and the
// unauthenticated CBC mode are properties of the external protocol, not
// choices available here; integrity comes from the mandatory checksum
// verification every caller must perform on the decrypted payload.
var callbackIV = []byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
}

// DecryptError means the ciphertext could not be decrypted: wrong key, wrong
// IV, or corrupt ciphertext framing.
type DecryptError struct {
	Err error
}

func (e *DecryptError) Error() string { return fmt.Sprintf("callback decrypt: %v", e.Err) }
func (e *DecryptError) Unwrap() error { return e.Err }

// DecodeError means decryption succeeded but the plaintext did not contain
// parseable structured data - a framing problem, distinct from a key problem.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("callback decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// CallbackDecryptor decrypts the counterparty's out-of-band push
// notifications. This is a separate channel from the envelope codec: pushes
// are AES-CBC under a pre-shared secret, not JWE/JWS.
type CallbackDecryptor struct {
	key []byte
}

// NewCallbackDecryptor derives the symmetric key from the key material's
// shared callback secret.
func NewCallbackDecryptor(keys *KeyMaterial) *CallbackDecryptor {
	return &CallbackDecryptor{key: keys.CallbackKey()}
}

// deriveCallbackKey resolves the cipher key from the configured secret
// string: a secret that is itself hex of a valid AES key length is used as
// raw key bytes; anything else is MD5-hashed to 16 bytes, matching the
// counterparty's reference derivation.
func deriveCallbackKey(secret string) []byte {
	if isHexKey(secret) {
		key, _ := hex.DecodeString(secret)
		return key
	}
	sum := md5.Sum([]byte(secret))
	return sum[:]
}

// Decrypt decodes the base64 ciphertext, AES-CBC-decrypts it under the fixed
// IV, strips PKCS#7 padding, and scans forward past any leading non-JSON
// byte noise the counterparty's gateway sometimes prepends before parsing.
// Returns the payload with wire field order preserved so its checksum can be
// verified positionally.
func (d *CallbackDecryptor) Decrypt(cipherBase64 string) (OrderedObject, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(cipherBase64)
	if err != nil {
		return nil, &DecryptError{Err: fmt.Errorf("invalid base64: %w", err)}
	}

	block, err := aes.NewCipher(d.key)
	if err != nil {
		return nil, &DecryptError{Err: err}
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &DecryptError{Err: fmt.Errorf("ciphertext length %d is not a block multiple", len(ciphertext))}
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, callbackIV).CryptBlocks(plaintext, ciphertext)

	plaintext, err = stripPKCS7(plaintext)
	if err != nil {
		return nil, &DecryptError{Err: err}
	}

	// skip leading garbage bytes before the first structural '{'
	start := bytes.IndexByte(plaintext, '{')
	if start < 0 {
		return nil, &DecodeError{Err: fmt.Errorf("no JSON object in decrypted payload")}
	}

	v, err := DecodeOrdered(plaintext[start:])
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	obj, ok := v.(OrderedObject)
	if !ok {
		return nil, &DecodeError{Err: fmt.Errorf("decrypted payload is not a JSON object")}
	}
	return obj, nil
}

func stripPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}
