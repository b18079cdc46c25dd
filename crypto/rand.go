package crypto

import (
	"crypto/rand"
	"math/big"
)

const (
	AlphanumericAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	DigitsAlphabet       = "0123456789"
)

// OtpLength is the fixed digit width of one-time passcodes. Six digits is
// the common tradeoff between guessability and what fits in an SMS.
const OtpLength = 6

// RandomString returns a cryptographically secure random string of length n
// drawn from the given alphabet. rand.Int performs rejection sampling, so
// the distribution over the alphabet is uniform.
func RandomString(n int, alphabet string) string {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failure means the platform RNG is broken,
			// there is no sane fallback
			panic(err)
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b)
}

// GenerateOtp returns a numeric one-time passcode of the fixed OtpLength
// width. Leading zeros are allowed so every code has the same width.
func GenerateOtp() string {
	return RandomString(OtpLength, DigitsAlphabet)
}
