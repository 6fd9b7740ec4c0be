// Package cache provides the short-lived key-value storage the identity core
// needs: OAuth nonces, reset/verify token digests, login codes.
//
// Backends:
//   - memory (in-process, development and tests)
//   - redis (production, shared across replicas)
package cache

import (
	"context"
	"errors"
	"time"
)

// Client is the operation set shared by all backends.
type Client interface {
	// Get returns a value or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value. ttl == 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// GetDelete returns a value and removes it in one step, or ErrNotFound.
	// Single-use tokens (OAuth nonces, reset tokens) are consumed through
	// this so a second presentation always misses.
	GetDelete(ctx context.Context, key string) (string, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string
	Password string
	DB       int
	Prefix   string
}

var ErrNotFound = errors.New("cache: key not found")

// New builds a client from config. Unknown drivers fall back to memory.
func New(cfg Config) (Client, error) {
	if cfg.Driver == "redis" {
		return NewRedis(cfg)
	}
	return NewMemory(cfg.Prefix), nil
}
