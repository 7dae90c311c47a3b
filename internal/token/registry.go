// Package token maps long structured callback commands onto short
// fixed-length tokens. Telegram caps callback data at 64 bytes, far less
// than the command strings the navigation layer wants to carry, so the
// wire only ever sees a content hash and the registry remembers which
// command it stands for.
package token

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
)

// Sentinels returned for lookups that miss. A decode miss is normal
// operation (stale token from a previous process incarnation) and must
// be routed to the home screen by the caller; an encode miss is a
// programming error worth logging.
const (
	Unregistered = "unregistered query"
	Unrecognized = "unrecognized query"
)

// FieldSeparator joins a command family with its arguments.
const FieldSeparator = "  "

// Registry holds the bidirectional command/token mapping for one process
// lifetime. Registration is pure memoization: nothing is persisted and
// nothing expires. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	byCommand map[string]string
	byToken   map[string]string
}

// NewRegistry creates a registry with the given fixed commands
// pre-registered.
func NewRegistry(fixed ...string) *Registry {
	r := &Registry{
		byCommand: make(map[string]string),
		byToken:   make(map[string]string),
	}
	for _, command := range fixed {
		r.Register(command)
	}
	return r
}

// Register memoizes the command under its content hash. Registering the
// same command twice is a no-op.
func (r *Registry) Register(command string) {
	t := hash(command)

	r.mu.Lock()
	r.byToken[t] = command
	r.byCommand[command] = t
	r.mu.Unlock()
}

// Encode returns the token previously registered for command, or the
// Unregistered sentinel when the command was never registered.
func (r *Registry) Encode(command string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.byCommand[command]; ok {
		return t
	}
	return Unregistered
}

// Decode returns the command a token stands for, or the Unrecognized
// sentinel when the token is unknown (e.g. issued before a restart).
func (r *Registry) Decode(t string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if command, ok := r.byToken[t]; ok {
		return command
	}
	return Unrecognized
}

// hash digests a command into its wire token. MD5 is used for its width
// and distribution, not for security: the vocabulary is a few thousand
// strings and 128 bits makes collisions vanishingly unlikely. The hex
// form is 32 bytes, comfortably under the 64-byte callback-data cap.
func hash(command string) string {
	sum := md5.Sum([]byte(command))
	return hex.EncodeToString(sum[:])
}
