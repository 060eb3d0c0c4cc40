package ledger

import (
	"crypto/rand"
	"fmt"
	"time"
)

const (
	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeSuffixLen = 8

	// maxCodeAttempts bounds regeneration on a unique-constraint collision.
	maxCodeAttempts = 5
)

// GenerateOrderCode builds a human-readable order code: prefix, current
// year, then a cryptographically random 8-character alphanumeric suffix
// grouped in fours, e.g. DODODR2026-X7KQ-M2P9.
func GenerateOrderCode(prefix string, now time.Time) string {
	buf := make([]byte, codeSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("ledger: read random: %v", err))
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return fmt.Sprintf("%s%d-%s-%s", prefix, now.Year(), buf[:4], buf[4:])
}
