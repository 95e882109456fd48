package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores opaque byte values by key
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a cache key from its parts (e.g. URL and Accept header)
func Key(namespace string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "fairmeter:v1:" + namespace + ":" + hex.EncodeToString(hash[:])
}

// Nop is a Cache that stores nothing
type Nop struct{}

func (Nop) Get(string) ([]byte, bool)                  { return nil, false }
func (Nop) Set(string, []byte, time.Duration) error    { return nil }
func (Nop) Delete(string) error                        { return nil }
func (Nop) Clear() error                               { return nil }
