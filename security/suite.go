package security

import (
	"context"
	"fmt"
	"strings"
)

const (
	ModeLegacyCBC = "aes-256-cbc"
	ModeEnvelope  = "aes-256-gcm"
)

// Cipher seals and opens opaque token material.
type Cipher interface {
	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, blob []byte) ([]byte, error)
}

// CipherSuite seals with the configured mode and opens blobs from either
// format, detecting envelope-prefixed material. CBC-sealed and
// GCM-sealed values can coexist in the same store during a migration.
type CipherSuite struct {
	sealer   Cipher
	envelope *EnvelopeCipher
	legacy   *LegacyCBCCipher
}

// ResolveCipher builds the suite for the configured mode. The secret is
// required; there is no fallback key.
func ResolveCipher(secret string, mode string, keyID string) (*CipherSuite, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("security: secret is required")
	}

	legacy, err := NewLegacyCBCCipher(secret)
	if err != nil {
		return nil, err
	}
	envelope, err := NewEnvelopeCipherFromString(secret, WithKeyID(keyID))
	if err != nil {
		return nil, err
	}

	suite := &CipherSuite{
		envelope: envelope,
		legacy:   legacy,
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeLegacyCBC:
		suite.sealer = legacy
	case ModeEnvelope:
		suite.sealer = envelope
	default:
		return nil, fmt.Errorf("security: unknown encryption mode %q", mode)
	}
	return suite, nil
}

func (s *CipherSuite) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	if s == nil || s.sealer == nil {
		return nil, fmt.Errorf("security: cipher is not configured")
	}
	return s.sealer.Seal(ctx, plaintext)
}

func (s *CipherSuite) Open(ctx context.Context, blob []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: cipher is not configured")
	}
	if IsEnvelope(blob) {
		return s.envelope.Open(ctx, blob)
	}
	return s.legacy.Open(ctx, blob)
}
