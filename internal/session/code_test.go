package session_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateport/internal/session"
)

func TestGenerateRespectsLengthAndAlphabet(t *testing.T) {
	t.Parallel()

	const alphabet = "0123456789ABCDEF"
	gen := session.NewCodeGenerator(8, alphabet)

	for i := 0; i < 50; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		assert.Len(t, code, 8)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(alphabet, r), "unexpected character %q in %s", r, code)
		}
	}
}

func TestGenerateRarelyCollides(t *testing.T) {
	t.Parallel()

	gen := session.NewCodeGenerator(8, "0123456789ABCDEF")

	// 16^8 possible codes; 200 draws colliding would point at a broken
	// random source rather than bad luck.
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestSpace(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(16), session.NewCodeGenerator(1, "0123456789ABCDEF").Space())
	assert.Equal(t, int64(65536), session.NewCodeGenerator(4, "0123456789ABCDEF").Space())
	assert.Equal(t, int64(2), session.NewCodeGenerator(1, "AB").Space())

	// Large configurations saturate instead of overflowing.
	huge := session.NewCodeGenerator(64, "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	assert.Equal(t, int64(1<<63-1), huge.Space())
}
