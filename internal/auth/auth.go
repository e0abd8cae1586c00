package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
)

// Identity names the operator behind an admin API key.
type Identity struct {
	Name string
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys []staticKey
}

type staticKey struct {
	key      []byte
	identity Identity
}

// NewStaticAPIKeyValidator parses comma separated "name:key" entries.
func NewStaticAPIKeyValidator(entries string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{}
	entries = strings.TrimSpace(entries)
	if entries == "" {
		return validator, nil
	}

	seen := map[string]bool{}
	for _, entry := range strings.Split(entries, ",") {
		name, key, ok := strings.Cut(strings.TrimSpace(entry), ":")
		name, key = strings.TrimSpace(name), strings.TrimSpace(key)
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("invalid admin key entry %q: expected name:key", entry)
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate admin key for %q", name)
		}
		seen[key] = true
		validator.keys = append(validator.keys, staticKey{key: []byte(key), identity: Identity{Name: name}})
	}
	return validator, nil
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}

// Validate compares apiKey against every configured key in constant time.
func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	candidate := []byte(apiKey)
	var match Identity
	found := false
	for _, k := range v.keys {
		if subtle.ConstantTimeCompare(k.key, candidate) == 1 {
			match, found = k.identity, true
		}
	}
	return match, found
}
