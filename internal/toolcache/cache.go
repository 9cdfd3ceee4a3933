// Package toolcache caches tool results keyed by tool name and a hash of the
// canonicalized arguments.
package toolcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Cache stores tool results. Implementations treat any backend failure as a miss.
type Cache interface {
	Get(ctx context.Context, tool, argsHash string) (string, bool)
	Put(ctx context.Context, tool, argsHash, value string, ttl time.Duration)
}

// NoExpiry marks a cache entry that never expires.
const NoExpiry time.Duration = -1

// HashArgs returns the sha256 hex digest of args encoded as canonical JSON
// with sorted keys at every level.
func HashArgs(args map[string]any) string {
	var b strings.Builder
	writeCanonical(&b, args)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSON(b, k)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		writeJSON(b, val)
	}
}

// writeJSON encodes scalars; anything encoding/json rejects is coerced with fmt.Sprint.
func writeJSON(b *strings.Builder, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		raw, _ = json.Marshal(fmt.Sprint(v))
	}
	b.Write(raw)
}

// Key builds the storage key for a (tool, hash) pair.
func Key(prefix, tool, argsHash string) string {
	return prefix + tool + ":" + argsHash
}
