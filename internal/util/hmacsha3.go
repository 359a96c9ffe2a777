package util

import (
	"crypto/hmac"
	"crypto/subtle"

	"golang.org/x/crypto/sha3"
)

// HMACSHA3Size is the output length of HMAC-SHA3-256.
const HMACSHA3Size = 32

// HMACSHA3256 computes HMAC-SHA3-256 over data, keyed by key.
func HMACSHA3256(key, data []byte) []byte {
	mac := hmac.New(sha3.New256, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// ConstantTimeCompare reports whether a and b are equal without leaking
// timing information about the position of the first mismatch.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
