package adapter

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
)

// Identity derives the stable adapter identity of §4.8:
// "_" + first 10 hex characters of sha1(host + ":" + port + ":" + topics).
// A restart that preserves host/port/topics reuses the same identity, so
// caches and observer state keyed by it survive the restart.
func Identity(host string, port int, topics []string) string {
	sum := sha1.Sum([]byte(host + ":" + strconv.Itoa(port) + ":" + strings.Join(topics, ",")))
	return "_" + hex.EncodeToString(sum[:])[:10]
}
