package cache

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// keyPrefix is the root of every Redis key written by RedisStore.
const keyPrefix = "fetch"

// NewNamespace returns a random namespace for one process. Keys written
// under it are unreachable from any later process, which keeps a Redis
// backed cache process-scoped.
func NewNamespace() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// RedisKey builds the Redis key for a locator key.
// Format: fetch:<namespace>:<locator key>
//
// Example:
//
//	fetch:9f2c1ab04e77d310:http://example.org/index.html
func RedisKey(namespace, key string) string {
	parts := []string{keyPrefix}
	if ns := strings.Trim(namespace, ":"); ns != "" {
		parts = append(parts, ns)
	}
	parts = append(parts, key)
	return strings.Join(parts, ":")
}
