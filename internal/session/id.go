package session

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// NewSessionID generates a compact alphanumeric session token from the
// current time, random entropy and a short environment fingerprint.
// Uniqueness is advisory for the session's lifetime, not fleet-wide.
func NewSessionID(nowMillis int64) string {
	var b strings.Builder

	b.WriteString(strconv.FormatInt(nowMillis, 36))

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err == nil {
		b.WriteString(strconv.FormatUint(binary.BigEndian.Uint64(buf[:])&0xffffffffff, 36))
	} else {
		// rand failure is effectively impossible; fall back to a time-derived value
		b.WriteString(strconv.FormatInt(nowMillis^0x5deece66d, 36))
	}

	b.WriteString(fingerprint())

	return b.String()
}

// fingerprint reduces host identity to a short base-36 token
func fingerprint() string {
	h := fnv.New32a()
	host, _ := os.Hostname()
	h.Write([]byte(host))
	h.Write([]byte(runtime.GOOS))
	h.Write([]byte(runtime.GOARCH))
	return strconv.FormatUint(uint64(h.Sum32()%(36*36*36*36)), 36)
}
