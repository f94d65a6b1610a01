// Package execcache implements the Execution Cache: a
// fingerprint-keyed memoization layer for step results.
package execcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// FingerprintInput is the tuple hashed to form a cache
// key: (pattern_id, pattern_version, step_name, capability, resolved_args,
// pricing_pack_id, ledger_commit_hash).
type FingerprintInput struct {
	PatternID        string
	PatternVersion   string
	StepName         string
	Capability       string
	ResolvedArgs     map[string]interface{}
	PricingPackID    string
	LedgerCommitHash string
}

// Fingerprint computes a stable 256-bit hash over the canonical
// serialization of in: equal tuples always produce equal fingerprints,
// regardless of map iteration order.
func Fingerprint(in FingerprintInput) string {
	canon := canonicalize(map[string]interface{}{
		"pattern_id":         in.PatternID,
		"pattern_version":    in.PatternVersion,
		"step_name":          in.StepName,
		"capability":         in.Capability,
		"resolved_args":      in.ResolvedArgs,
		"pricing_pack_id":    in.PricingPackID,
		"ledger_commit_hash": in.LedgerCommitHash,
	})
	h := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(h[:])
}

// canonicalize produces a deterministic string encoding of v: mapping keys
// sorted, numbers encoded stably via encoding/json (Go's json.Marshal
// already sorts map[string]interface{} keys, but we sort explicitly at
// every level to document the invariant and stay correct if a future
// change swaps in a non-sorting encoder).
func canonicalize(v interface{}) string {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ","
			}
			kb, _ := json.Marshal(k)
			out += string(kb) + ":" + canonicalize(val[k])
		}
		return out + "}"
	case []interface{}:
		out := "["
		for i, item := range val {
			if i > 0 {
				out += ","
			}
			out += canonicalize(item)
		}
		return out + "]"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
