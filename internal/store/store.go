// Package store implements the persistent stores behind the directory
// bot: the category tree, the chat index, accounts, sessions and the
// generic key/value table. Stores are explicit injectable objects owned
// by the composition root; the in-process caches they carry are shared
// by all handlers and guarded with store-level mutexes.
package store

import "errors"

// Sentinel errors shared by the stores. Callers are expected to branch
// on these rather than inspect driver errors.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNotEmpty means a category still has children or chats and
	// cannot be deleted.
	ErrNotEmpty = errors.New("category is not empty")

	// ErrCycle means a move would make a category its own ancestor.
	ErrCycle = errors.New("move would create a cycle")
)
