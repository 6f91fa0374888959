// Package dedup guards ingestion against recording the same inbound event twice.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// DefaultWindow is the width of the time bucket folded into a fingerprint
const DefaultWindow = 5 * time.Minute

// Bucket returns the index of the window-wide time bucket containing at
func Bucket(at time.Time, window time.Duration) int64 {
	if window <= 0 {
		window = DefaultWindow
	}
	return at.UnixNano() / int64(window)
}

// Fingerprint hashes the raw text, its source and the time bucket of at.
// Identical text from the same source inside one bucket yields the same value.
func Fingerprint(rawText, sourceKey string, at time.Time, window time.Duration) string {
	h := sha256.New()
	h.Write([]byte(rawText))
	h.Write([]byte{0})
	h.Write([]byte(sourceKey))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(Bucket(at, window), 10)))
	return hex.EncodeToString(h.Sum(nil))
}
