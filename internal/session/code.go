package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeGenerator draws join codes from a cryptographically random source.
// Codes are what end users share, so they must be unguessable.
type CodeGenerator struct {
	length   int
	alphabet string
}

func NewCodeGenerator(length int, alphabet string) *CodeGenerator {
	return &CodeGenerator{length: length, alphabet: alphabet}
}

// Generate returns one random code. Uniqueness against live sessions is the
// registry's job.
func (g *CodeGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(g.alphabet)))
	buf := make([]byte, g.length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random source: %w", err)
		}
		buf[i] = g.alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Space returns the number of distinct codes the generator can produce.
// Capped at 2^63-1 for very large configurations.
func (g *CodeGenerator) Space() int64 {
	space := big.NewInt(1)
	base := big.NewInt(int64(len(g.alphabet)))
	for i := 0; i < g.length; i++ {
		space.Mul(space, base)
		if !space.IsInt64() {
			return int64(1<<63 - 1)
		}
	}
	return space.Int64()
}
