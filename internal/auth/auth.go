// Package auth guards the JSON API with static API keys. The browser form is
// session-cookie based and is not covered.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
)

type Identity struct {
	Client string
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

// NewStaticAPIKeyValidator parses "key:client,key:client". An empty spec
// yields a validator with no keys.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	seen := map[string]bool{}
	for _, entry := range strings.Split(spec, ",") {
		key, client, ok := strings.Cut(strings.TrimSpace(entry), ":")
		key = strings.TrimSpace(key)
		client = strings.TrimSpace(client)
		if !ok || key == "" || client == "" {
			return nil, fmt.Errorf("invalid api key entry %q: expected key:client", redact(entry))
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate api key for client %q", client)
		}
		seen[key] = true
		validator.keys = append(validator.keys, staticKey{key: []byte(key), identity: Identity{Client: client}})
	}
	return validator, nil
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}

// Validate compares against every key in constant time.
func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	candidate := []byte(apiKey)
	var (
		found   Identity
		matched bool
	)
	for _, k := range v.keys {
		if subtle.ConstantTimeCompare(k.key, candidate) == 1 {
			found = k.identity
			matched = true
		}
	}
	return found, matched
}

func redact(entry string) string {
	key, rest, ok := strings.Cut(strings.TrimSpace(entry), ":")
	if !ok {
		return "***"
	}
	if len(key) > 2 {
		key = key[:2]
	}
	return key + "***:" + rest
}
