package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores oracle responses by request fingerprint
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key fingerprints an oracle request. Fields are length-prefixed so that
// ("ab","c") and ("a","bc") hash differently.
func Key(fields ...string) string {
	h := sha256.New()
	var lenBuf [8]byte
	for _, f := range fields {
		n := uint64(len(f))
		for i := 0; i < 8; i++ {
			lenBuf[i] = byte(n >> (8 * i))
		}
		h.Write(lenBuf[:])
		h.Write([]byte(f))
	}
	return "hopqa:v1:" + hex.EncodeToString(h.Sum(nil))
}
