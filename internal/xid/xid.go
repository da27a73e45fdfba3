package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// LocalPrefix marks identifiers minted on the terminal. Server-assigned ids
// never carry it, so the two are distinguishable by inspection.
const LocalPrefix = "local"

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// NewLocal mints an identifier for a record that only exists on this device.
func NewLocal() string {
	return New(LocalPrefix)
}

// IsLocal reports whether id was minted by NewLocal on a terminal.
func IsLocal(id string) bool {
	return strings.HasPrefix(id, LocalPrefix+"-")
}
