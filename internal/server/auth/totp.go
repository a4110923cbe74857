package auth

import (
	"time"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// secretSize is the number of random bytes behind a verification secret or
// token; base32 turns 20 bytes into 32 characters.
const secretSize = 20

// Verifier generates and checks time-based one-time codes (RFC 6238,
// 6 digits, HMAC-SHA1). The code of the current step and of one step on
// either side are accepted.
type Verifier struct {
	interval time.Duration
	now      func() time.Time
}

func NewVerifier(interval time.Duration) *Verifier {
	return &Verifier{interval: interval, now: time.Now}
}

// WithClock returns a copy of v reading time from now. Tests use it to pin
// or move the clock.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	return &Verifier{interval: v.interval, now: now}
}

func (v *Verifier) Interval() time.Duration { return v.interval }

// Now is the verifier's current time.
func (v *Verifier) Now() time.Time { return v.now() }

func (v *Verifier) opts() totp.ValidateOpts {
	period := uint(v.interval / time.Second)
	if period == 0 {
		period = 1
	}
	return totp.ValidateOpts{
		Period:    period,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Material joins the per-phone secret and the per-attempt token into the
// key a code is derived from.
func Material(secret, token string) string {
	return secret + token
}

// NewSecret returns a fresh random base32 string usable as either half of
// the secret material.
func NewSecret() (string, error) {
	return common.RandomBase32(secretSize)
}

// Generate returns the code for the current time step.
func (v *Verifier) Generate(material string) (string, error) {
	return totp.GenerateCodeCustom(material, v.now(), v.opts())
}

// Verify reports whether candidate matches material at the current time.
// Malformed material or candidates yield false.
func (v *Verifier) Verify(material, candidate string) bool {
	if material == "" {
		return false
	}
	ok, err := totp.ValidateCustom(candidate, material, v.now().UTC(), v.opts())
	return err == nil && ok
}
