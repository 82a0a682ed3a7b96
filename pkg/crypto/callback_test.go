package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCallbackSecret = "7d320cf27dab0564a8de42f4ca9f00ca"

// encryptCallback mirrors the counterparty's push encryption for tests.
func encryptCallback(t *testing.T, key, plaintext []byte) string {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext)+pad)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, callbackIV).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

func newTestDecryptor() *CallbackDecryptor {
	return NewCallbackDecryptor(&KeyMaterial{CallbackSecret: testCallbackSecret})
}

func TestDeriveCallbackKey_HexSecretUsedRaw(t *testing.T) {
	key := deriveCallbackKey(testCallbackSecret)

	// 32 hex chars decode to a 16-byte AES-128 key
	assert.Len(t, key, 16)
	assert.Equal(t, byte(0x7d), key[0])
}

func TestDeriveCallbackKey_NonHexSecretHashed(t *testing.T) {
	key := deriveCallbackKey("not-a-hex-secret")

	assert.Len(t, key, 16)
	assert.NotEqual(t, []byte("not-a-hex-secret")[:16], key)
}

func TestCallbackDecrypt_RoundTrip(t *testing.T) {
	d := newTestDecryptor()
	cipherB64 := encryptCallback(t, d.key, []byte(`{"crn":"REF-001","utrNo":"UTR123"}`))

	payload, err := d.Decrypt(cipherB64)
	require.NoError(t, err)

	assert.Equal(t, "REF-001", payload.Get("crn"))
	assert.Equal(t, "UTR123", payload.Get("utrNo"))
}

func TestCallbackDecrypt_SkipsLeadingGarbage(t *testing.T) {
	d := newTestDecryptor()
	noisy := append([]byte{0x00, 0xfe, 0x20, 0x0a}, []byte(`{"crn":"REF-001"}`)...)
	cipherB64 := encryptCallback(t, d.key, noisy)

	payload, err := d.Decrypt(cipherB64)
	require.NoError(t, err)

	assert.Equal(t, "REF-001", payload.Get("crn"))
}

func TestCallbackDecrypt_WrongKeyIsDecryptError(t *testing.T) {
	d := newTestDecryptor()
	wrongKey := deriveCallbackKey("some-other-secret")
	cipherB64 := encryptCallback(t, wrongKey, []byte(`{"crn":"REF-001"}`))

	_, err := d.Decrypt(cipherB64)
	require.Error(t, err)

	// wrong key surfaces as decrypt (bad padding) or decode (no object),
	// never a silent success
	var decryptErr *DecryptError
	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decryptErr) || errors.As(err, &decodeErr))
}

func TestCallbackDecrypt_NonJSONPlaintextIsDecodeError(t *testing.T) {
	d := newTestDecryptor()
	cipherB64 := encryptCallback(t, d.key, []byte("plain text, no object here"))

	_, err := d.Decrypt(cipherB64)
	require.Error(t, err)

	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestCallbackDecrypt_InvalidBase64IsDecryptError(t *testing.T) {
	d := newTestDecryptor()

	_, err := d.Decrypt("!!!not base64!!!")
	require.Error(t, err)

	var decryptErr *DecryptError
	assert.True(t, errors.As(err, &decryptErr))
}

func TestCallbackDecrypt_TruncatedCiphertextIsDecryptError(t *testing.T) {
	d := newTestDecryptor()
	cipherB64 := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})

	_, err := d.Decrypt(cipherB64)
	require.Error(t, err)

	var decryptErr *DecryptError
	assert.True(t, errors.As(err, &decryptErr))
}

func TestCallbackDecrypt_PreservesWireOrderForChecksum(t *testing.T) {
	d := newTestDecryptor()
	inner := "REF-001UTR123"
	raw := `{"crn":"REF-001","utrNo":"UTR123","checksum":"` + md5hex(inner) + `"}`
	cipherB64 := encryptCallback(t, d.key, []byte(raw))

	payload, err := d.Decrypt(cipherB64)
	require.NoError(t, err)

	assert.True(t, VerifyChecksum(payload))
}
