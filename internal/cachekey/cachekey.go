// Package cachekey computes the strong and weak cache-key fingerprints of
// an element from its kind, variables, environment, config, public data,
// sandbox config, source fingerprints, and dependency keys, canonicalizing
// with RFC 8785 JSON Canonicalization (JCS): any deterministic,
// order-independent encoding of the same logical value produces the same
// key, the way a sorted-dict pickle would.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// SourceFingerprint is one source's contribution to an element's cache key:
// its kind plus its plugin-reported unique_key value.
type SourceFingerprint struct {
	Kind      string `json:"kind"`
	UniqueKey any    `json:"unique_key"`
}

// DependencyKey names one build dependency's contribution to the key tuple.
// For a strong key, Key holds the dependency's own strong key; for a weak
// key, Key is empty and only Name is populated.
type DependencyKey struct {
	Name string `json:"name"`
	Key  string `json:"key,omitempty"`
}

// ElementState is the canonicalized, user-visible state of one element that
// participates in its cache key.
type ElementState struct {
	Kind               string              `json:"kind"`
	Variables          map[string]string   `json:"variables"`
	Environment        map[string]string   `json:"environment"`
	Config             map[string]any      `json:"config"`
	Public             map[string]any      `json:"public"`
	SandboxConfig      map[string]any      `json:"sandbox"`
	SourceFingerprints []SourceFingerprint `json:"sources"`
	BuildDependencies  []DependencyKey     `json:"build_dependencies"`
}

// Strong computes the strong cache key: the SHA-256 hex digest of the
// canonicalized tuple with build dependencies identified by their own
// strong keys. Strict mode always uses this as artifact
// identity.
func Strong(state ElementState) (string, error) {
	strongState := state
	strongState.BuildDependencies = slices.Clone(state.BuildDependencies)
	slices.SortFunc(strongState.BuildDependencies, func(a, b DependencyKey) int {
		if a.Key != b.Key {
			if a.Key < b.Key {
				return -1
			}
			return 1
		}
		return 0
	})
	return hashCanonical(strongState)
}

// Weak computes the weak cache key: identical to Strong except build
// dependencies are identified by name only, so it is stable across a
// dependency rebuild that doesn't change the dependency's name.
func Weak(state ElementState, depNames []string) (string, error) {
	names := slices.Clone(depNames)
	slices.Sort(names)
	weakState := state
	weakState.BuildDependencies = make([]DependencyKey, len(names))
	for i, n := range names {
		weakState.BuildDependencies[i] = DependencyKey{Name: n}
	}
	return hashCanonical(weakState)
}

// EnvironmentMinusNoCache removes every key named in noCache from env.
func EnvironmentMinusNoCache(env map[string]string, noCache []string) map[string]string {
	if len(noCache) == 0 {
		return env
	}
	excluded := make(map[string]struct{}, len(noCache))
	for _, k := range noCache {
		excluded[k] = struct{}{}
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		if _, skip := excluded[k]; skip {
			continue
		}
		out[k] = v
	}
	return out
}

func hashCanonical(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cachekey: failed to marshal element state: %w", err)
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("cachekey: failed to canonicalize element state: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
