// Package secure keeps the platform bearer credential out of plain process
// memory for the lifetime of a rollout. The token is held in a memguard
// enclave (encrypted at rest, mlocked where the OS allows it) and only
// decrypted for the duration of a single request-header injection.
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Token is a protected bearer credential.
//
// The zero value is unusable; construct with NewToken. Callers get the
// plaintext through Reveal and must invoke the returned cleanup function as
// soon as the value has been consumed.
type Token struct {
	enclave *memguard.Enclave
	mu      sync.RWMutex
	// destroyed allows idempotent Destroy() calls and blocks use after destroy
	destroyed bool
}

// NewToken copies the credential bytes into a protected memory region.
// The caller should zero its own copy afterwards.
//
// If mlock is unavailable (e.g. RLIMIT_MEMLOCK), memguard degrades to
// standard allocation; the enclave contents remain encrypted either way.
func NewToken(value []byte) *Token {
	return &Token{
		enclave: memguard.NewEnclave(value),
	}
}

// Reveal decrypts the token and returns the plaintext together with a cleanup
// function that wipes the decrypted buffer. Typical use:
//
//	plain, done, err := tok.Reveal()
//	if err != nil {
//	    return err
//	}
//	defer done()
//	req.Header.Set("Authorization", "Bearer "+plain)
func (t *Token) Reveal() (string, func(), error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.destroyed || t.enclave == nil {
		return "", func() {}, nil
	}

	buf, err := t.enclave.Open()
	if err != nil {
		return "", func() {}, err
	}
	return buf.String(), buf.Destroy, nil
}

// Destroy marks the token as unusable. Idempotent. After Destroy, Reveal
// returns an empty string.
//
// For complete cleanup of all memguard state at process exit, main should
// defer memguard.Purge().
func (t *Token) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return
	}
	t.enclave = nil
	t.destroyed = true
}
