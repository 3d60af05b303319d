package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Domain-specific hash types
type (
	RegistryHash Hash
	ConfigHash   Hash
)

// Constructors
func NewRegistryHash(data []byte) RegistryHash { return RegistryHash(NewHash(data)) }
func NewConfigHash(data []byte) ConfigHash     { return ConfigHash(NewHash(data)) }

// String conversions
func (h RegistryHash) String() string { return Hash(h).String() }
func (h ConfigHash) String() string   { return Hash(h).String() }

// ComputeRegistryHash fingerprints the strategy/parameter registry. Keys are
// sorted so map iteration order never leaks into the fingerprint.
func ComputeRegistryHash(entries map[string]string) RegistryHash {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString(entries[key])
	}

	return NewRegistryHash([]byte(data.String()))
}

// ComputeConfigHash fingerprints the scalar run configuration values that
// determine reproducibility.
func ComputeConfigHash(fields ...interface{}) ConfigHash {
	var data strings.Builder
	for _, f := range fields {
		data.WriteString(fmt.Sprintf("%v|", f))
	}
	return NewConfigHash([]byte(data.String()))
}
