package pkg

import (
	"math/rand/v2"
	"strings"
)

const randAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandString returns n random lowercase alphanumerics. It is not suitable
// for secrets.
func RandString(n int) string {
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(randAlphabet[rand.IntN(len(randAlphabet))]) //nolint:gosec
	}
	return b.String()
}
