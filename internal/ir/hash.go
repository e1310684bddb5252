package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// leaves room to change the hashed fields.
const (
	DomainExpansion = "constguard/expansion/v1"
	DomainOptions   = "constguard/options/v1"
)

// hashWithDomain returns hex(SHA-256(domain || 0x00 || data)). The null
// byte keeps domain and data from running together.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ExpansionID computes the identity of one guard application. Two
// applications with the same declaration text, guard text, context and
// emitter options render the same output, so the ID doubles as a cache key.
func ExpansionID(key ExpansionKey) (string, error) {
	opts := make(Object, len(key.Options))
	for k, v := range key.Options {
		opts[k] = String(v)
	}
	obj := Object{
		"item":    String(key.Item),
		"guard":   String(key.Guard),
		"context": String(key.Context),
		"options": opts,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ExpansionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainExpansion, canonical), nil
}

// MustExpansionID is like ExpansionID but panics on error.
func MustExpansionID(key ExpansionKey) string {
	id, err := ExpansionID(key)
	if err != nil {
		panic(err)
	}
	return id
}

// OptionsHash fingerprints an option set so runs with different emitter
// configuration can be told apart in the ledger.
func OptionsHash(opts map[string]string) (string, error) {
	obj := make(Object, len(opts))
	for k, v := range opts {
		obj[k] = String(v)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("OptionsHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainOptions, canonical), nil
}
