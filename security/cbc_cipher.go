package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// LegacyCBCCipher seals token material with AES-256-CBC in the original
// blob format: `hex(iv) + ":" + hex(ciphertext)` with PKCS#7 padding.
// The key is the configured secret truncated or padded with ASCII '0'
// bytes to exactly 32 bytes. CBC carries no integrity check, so a
// tampered blob may open to garbage instead of failing; new records
// should move to the envelope format.
type LegacyCBCCipher struct {
	key []byte
}

func NewLegacyCBCCipher(secret string) (*LegacyCBCCipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("security: secret is required")
	}
	return &LegacyCBCCipher{key: deriveLegacyKey(secret)}, nil
}

func (c *LegacyCBCCipher) Seal(_ context.Context, plaintext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: cipher is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("security: iv generation failed: %w", err)
	}

	padded := padPKCS7(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	blob := hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext)
	return []byte(blob), nil
}

func (c *LegacyCBCCipher) Open(_ context.Context, blob []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: cipher is nil")
	}
	if len(blob) == 0 {
		return nil, fmt.Errorf("security: ciphertext is required")
	}

	parts := strings.SplitN(string(blob), ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("security: malformed ciphertext blob")
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("security: decode iv: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("security: invalid iv size %d", len(iv))
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("security: invalid ciphertext size %d", len(ciphertext))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := unpadPKCS7(plaintext, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return unpadded, nil
}

// deriveLegacyKey reproduces the original key schedule exactly: take the
// first 32 bytes of the secret, then pad short secrets with the
// character '0' out to 32. Changing this would orphan every stored blob.
func deriveLegacyKey(secret string) []byte {
	if len(secret) > 32 {
		secret = secret[:32]
	}
	key := []byte(secret)
	for len(key) < 32 {
		key = append(key, '0')
	}
	return key
}

func padPKCS7(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, fmt.Errorf("invalid padding byte %d", padding)
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
