package memory

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// legacyIV marks records written without authenticated encryption. Legacy
// payloads are base64-obfuscated, not confidential.
const legacyIV = "legacy"

// Cipher seals and opens memory payloads with a session-signature-derived
// key. Records sealed under one signature must not open under another.
type Cipher interface {
	Encrypt(signature, plaintext string) (iv, data string, err error)
	Decrypt(signature, iv, data string) (string, error)
	// AtRest reports whether payloads are actually encrypted on disk.
	AtRest() bool
}

// NewCipher selects the payload cipher. Mode "legacy" keeps the degraded
// base64 format for environments that must interoperate with old records.
func NewCipher(mode string) Cipher {
	if strings.EqualFold(mode, "legacy") {
		return legacyCipher{}
	}
	return aesCipher{}
}

// aesCipher derives a per-session AES-256-GCM key from the SHA-256 of the
// session signature.
type aesCipher struct{}

func (aesCipher) AtRest() bool { return true }

func (aesCipher) gcm(signature string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(signature))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("memory: failed to init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to init gcm: %w", err)
	}
	return gcm, nil
}

func (c aesCipher) Encrypt(signature, plaintext string) (string, string, error) {
	gcm, err := c.gcm(signature)
	if err != nil {
		return "", "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("memory: failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce), base64.StdEncoding.EncodeToString(sealed), nil
}

func (c aesCipher) Decrypt(signature, iv, data string) (string, error) {
	// Legacy records may coexist with sealed ones in the same store.
	if iv == legacyIV {
		return legacyCipher{}.Decrypt(signature, iv, data)
	}
	gcm, err := c.gcm(signature)
	if err != nil {
		return "", err
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("memory: malformed record iv: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("memory: malformed record data: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("memory: failed to open record: %w", err)
	}
	return string(plaintext), nil
}

// legacyCipher base64-encodes the signature-salted payload. It exists for
// compatibility only and reports not-at-rest in analytics.
type legacyCipher struct{}

func (legacyCipher) AtRest() bool { return false }

func (legacyCipher) Encrypt(signature, plaintext string) (string, string, error) {
	return legacyIV, base64.StdEncoding.EncodeToString([]byte(signature + ":" + plaintext)), nil
}

func (legacyCipher) Decrypt(signature, _, data string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("memory: failed to decode legacy record: %w", err)
	}
	return strings.Replace(string(decoded), signature+":", "", 1), nil
}
