// Package state provides persistent key-value storage with multiple backends.
package state

import (
	"context"
	"encoding/json"
	"fmt"
)

// KV is the interface for key-value storage backends. Values are strings;
// structured values go through GetJSON and SetJSON.
type KV interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	Set(ctx context.Context, key, value string) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// Keys returns all keys with the given prefix ("" for all).
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// BackendType represents the storage backend type.
type BackendType string

const (
	BackendFile   BackendType = "file"
	BackendRedis  BackendType = "redis"
	BackendMemory BackendType = "memory"
)

// Config configures the state store.
type Config struct {
	Backend BackendType

	// File backend
	FilePath      string
	AutoSave      bool
	SaveIntervalS int

	// Redis backend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// GetJSON decodes the JSON value stored under key into out.
func GetJSON(ctx context.Context, kv KV, key string, out any) (bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return true, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value under key as JSON.
func SetJSON(ctx context.Context, kv KV, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return kv.Set(ctx, key, string(data))
}
