package cache

import (
	"crypto/sha1" //nolint:gosec // content addressing, not a security boundary
	"encoding/hex"
	"strings"
)

// Trace is the human-readable form of an operation and its arguments,
// stored next to each record: op followed by the arguments, "-" separated.
func Trace(op string, args ...string) string {
	return strings.Join(append([]string{op}, args...), "-")
}

// Key derives the content address of an operation and its ordered arguments.
// It is the hex SHA-1 of Trace(op, args...), so it is stable across restarts
// and processes.
func Key(op string, args ...string) string {
	sum := sha1.Sum([]byte(Trace(op, args...))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
