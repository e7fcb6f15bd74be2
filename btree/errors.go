package btree

import "github.com/pkg/errors"

// Sentinel errors, one per row of the engine's error taxonomy. Callers use
// errors.Is against these. ErrInsane, ErrBufferRange and ErrUnimplemented
// are wrapped with errors.Wrapf to add context; ErrNotFound, ErrConflict
// and ErrNoSpace are returned unwrapped.
var (
	// ErrNotFound is returned by Lookup and Update when the key is absent.
	ErrNotFound = errors.New("btree: key not found")
	// ErrConflict is returned by Insert when the key already exists.
	ErrConflict = errors.New("btree: key already exists")
	// ErrNoSpace is returned when the freelist is exhausted.
	ErrNoSpace = errors.New("btree: no space left, freelist exhausted")
	// ErrUnimplemented is returned by operations deliberately not provided.
	ErrUnimplemented = errors.New("btree: operation not implemented")
	// ErrInsane marks an invariant violation: an unexpected node kind or
	// an impossible branch. It indicates a bug in the engine, not bad
	// input, and is never meant to be handled as ordinary business logic.
	ErrInsane = errors.New("btree: insane, invariant violation")
	// ErrBufferRange is returned by the block codec when an accessor is
	// used outside the valid slot range, and when a key or value does not
	// have the index's configured size.
	ErrBufferRange = errors.New("btree: buffer or slot out of range")
)
