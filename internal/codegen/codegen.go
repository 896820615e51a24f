// Package codegen generates short, ambiguity-free pairing codes.
//
// Grounded in lobby/internal/auth's magic-code generator: crypto/rand backed,
// fixed length, no per-call allocation surprises. The alphabet here is wider
// (32 symbols, letters+digits) and excludes characters that are easy to
// confuse when read off a screen (0/O, 1/I).
package codegen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Alphabet is A-Z and 2-9 without 0, 1, I and O; 32 symbols keeps each
// character worth exactly 5 bits.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the number of characters in a generated pairing code.
const Length = 7

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Code returns a new uniformly random code of Length characters drawn from
// Alphabet, using crypto/rand for each character.
func Code() (string, error) {
	buf := make([]byte, Length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generating pairing code: %w", err)
		}
		buf[i] = Alphabet[n.Int64()]
	}
	return string(buf), nil
}
