// Package meta carries the interface to the storage-protocol client and the
// decoding of group metadata values read through it.
package meta

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by a disconnected session
var ErrNotConfigured = errors.New("storage session is not configured")

// Session is a handle to the storage-protocol client library. Reads are
// issued on a clone so concurrent requests never share request state, the
// way the underlying client requires.
type Session interface {
	// Clone returns an independent session sharing the same connection
	Clone() Session

	// ReadKey reads key from the given namespace, restricted to the listed
	// groups
	ReadKey(ctx context.Context, namespace, key string, groups []int) ([]byte, error)
}

// disconnectedSession satisfies Session when the process runs without a
// storage client. Every read fails, which degrades groups to their previous
// metadata instead of failing rounds.
type disconnectedSession struct{}

// NewDisconnectedSession returns a session whose reads always fail with
// ErrNotConfigured
func NewDisconnectedSession() Session {
	return disconnectedSession{}
}

func (s disconnectedSession) Clone() Session {
	return s
}

func (s disconnectedSession) ReadKey(ctx context.Context, namespace, key string, groups []int) ([]byte, error) {
	return nil, ErrNotConfigured
}
