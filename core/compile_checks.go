package core

import "github.com/goliatone/go-autopost/security"

var (
	_ TokenCipher     = (*security.CipherSuite)(nil)
	_ TokenCipher     = (*security.EnvelopeCipher)(nil)
	_ TokenCipher     = (*security.LegacyCBCCipher)(nil)
	_ OAuthStateStore = (*MemoryOAuthStateStore)(nil)
)
