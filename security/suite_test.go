package security

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestResolveCipher_DefaultsToLegacyMode(t *testing.T) {
	suite, err := ResolveCipher("super-secret-test-key", "", "app-key")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	blob, err := suite.Seal(context.Background(), []byte("token"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if IsEnvelope(blob) {
		t.Fatalf("expected legacy blob; got envelope")
	}
	if !strings.Contains(string(blob), ":") {
		t.Fatalf("expected iv:ciphertext blob; got %q", string(blob))
	}
}

func TestResolveCipher_EnvelopeMode(t *testing.T) {
	suite, err := ResolveCipher("super-secret-test-key", ModeEnvelope, "app-key")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	blob, err := suite.Seal(context.Background(), []byte("token"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsEnvelope(blob) {
		t.Fatalf("expected envelope blob")
	}
}

func TestResolveCipher_OpenDetectsBothFormats(t *testing.T) {
	suite, err := ResolveCipher("super-secret-test-key", ModeEnvelope, "app-key")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	legacy, err := NewLegacyCBCCipher("super-secret-test-key")
	if err != nil {
		t.Fatalf("new legacy cipher: %v", err)
	}
	legacyBlob, err := legacy.Seal(context.Background(), []byte("cbc-token"))
	if err != nil {
		t.Fatalf("seal legacy: %v", err)
	}
	envelopeBlob, err := suite.Seal(context.Background(), []byte("gcm-token"))
	if err != nil {
		t.Fatalf("seal envelope: %v", err)
	}

	fromLegacy, err := suite.Open(context.Background(), legacyBlob)
	if err != nil {
		t.Fatalf("open legacy blob: %v", err)
	}
	if !bytes.Equal(fromLegacy, []byte("cbc-token")) {
		t.Fatalf("expected cbc-token; got %q", string(fromLegacy))
	}

	fromEnvelope, err := suite.Open(context.Background(), envelopeBlob)
	if err != nil {
		t.Fatalf("open envelope blob: %v", err)
	}
	if !bytes.Equal(fromEnvelope, []byte("gcm-token")) {
		t.Fatalf("expected gcm-token; got %q", string(fromEnvelope))
	}
}

func TestResolveCipher_Validation(t *testing.T) {
	if _, err := ResolveCipher("", ModeLegacyCBC, "app-key"); err == nil {
		t.Fatalf("expected missing secret error")
	}
	if _, err := ResolveCipher("secret", "rot13", "app-key"); err == nil {
		t.Fatalf("expected unknown mode error")
	}
}
