package utils

import (
	"crypto/rand"
	"math/big"
)

// joinCodeAlphabet omits visually ambiguous characters (0/O, 1/I/L).
const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const JoinCodeLength = 6

// GenerateJoinCode returns a short human-readable code for guests to enter.
// Uniqueness is enforced by the database index, not here.
func GenerateJoinCode() (string, error) {
	code := make([]byte, JoinCodeLength)
	max := big.NewInt(int64(len(joinCodeAlphabet)))

	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = joinCodeAlphabet[n.Int64()]
	}

	return string(code), nil
}
