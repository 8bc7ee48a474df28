package pool

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateJoinCode(t *testing.T) {
	hexRe := regexp.MustCompile(`^[0-9a-f]{12}$`)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code, err := GenerateJoinCode()
		require.NoError(t, err)
		assert.True(t, hexRe.MatchString(code), "unexpected code format: %q", code)
		assert.False(t, seen[code], "duplicate code generated: %q", code)
		seen[code] = true
	}
}
