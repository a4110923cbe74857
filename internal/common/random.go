package common

import (
	"crypto/rand"
	"encoding/base32"
)

// GenerateRandBytes returns size bytes read from crypto/rand.
func GenerateRandBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// RandomBase32 encodes size random bytes as unpadded base32. Twenty bytes
// give the usual 32-character OTP secret.
func RandomBase32(size int) (string, error) {
	b, err := GenerateRandBytes(size)
	if err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b), nil
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// Used for passwords read from the terminal.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
