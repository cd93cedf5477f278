// internal/keygen/keygen.go

// Package keygen produces license keys in the fixed GestionPro format:
// GP-<base36 timestamp>-<16 hex random>-<4 hex checksum>, all uppercase.
// Keys are opaque random identifiers with a tamper checksum, not
// offline-verifiable signatures.
package keygen

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const prefix = "GP"

var keyPattern = regexp.MustCompile(`^GP-[A-Z0-9]+-[A-F0-9]{16}-[A-F0-9]{4}$`)

// Generate returns a new license key.
func Generate() (string, error) {
	timestamp := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))

	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	random := strings.ToUpper(hex.EncodeToString(raw))

	return fmt.Sprintf("%s-%s-%s-%s", prefix, timestamp, random, checksum(timestamp, random)), nil
}

// ValidFormat reports whether key matches the GP key shape.
func ValidFormat(key string) bool {
	return keyPattern.MatchString(key)
}

// Verify reports whether key matches the shape and carries a correct
// checksum over its timestamp and random segments.
func Verify(key string) bool {
	if !ValidFormat(key) {
		return false
	}
	parts := strings.Split(key, "-")
	return parts[3] == checksum(parts[1], parts[2])
}

func checksum(timestamp, random string) string {
	sum := md5.Sum([]byte(timestamp + random))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:4]
}
