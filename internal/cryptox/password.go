// Package cryptox contains the password hashing used for user credentials.
package cryptox

import (
	"crypto/subtle"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"golang.org/x/crypto/argon2"
)

const saltSize = 16

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultArgon2Params: one pass over 64 MiB with four lanes.
var DefaultArgon2Params = Argon2Params{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLen: 32}

// PasswordHasher derives password hashes with argon2id and a random salt per
// user. It keeps no state besides its parameters.
type PasswordHasher struct {
	params Argon2Params
}

func NewPasswordHasher(p Argon2Params) *PasswordHasher {
	return &PasswordHasher{params: p}
}

// ChangePassword returns a fresh salt and the hash of password under it.
func (h *PasswordHasher) ChangePassword(password string) (salt, hash []byte, err error) {
	salt, err = common.GenerateRandBytes(saltSize)
	if err != nil {
		return nil, nil, err
	}
	return salt, h.derive(password, salt), nil
}

// CheckPassword recomputes the hash for password and salt and compares it
// with hash in constant time.
func (h *PasswordHasher) CheckPassword(password string, salt, hash []byte) bool {
	if len(salt) == 0 || len(hash) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(h.derive(password, salt), hash) == 1
}

func (h *PasswordHasher) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
}
