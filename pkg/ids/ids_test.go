package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
)

func TestParse_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseDomainID("   ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects overlong identifiers", func(t *testing.T) {
		_, err := ParseUserID(strings.Repeat("a", MaxLength+1))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts readable seeded IDs", func(t *testing.T) {
		id, err := ParseDomainID("default")
		require.NoError(t, err)
		assert.Equal(t, DomainID("default"), id)
	})

	t.Run("accepts generated IDs", func(t *testing.T) {
		generated := NewProjectID()
		parsed, err := ParseProjectID(generated.String())
		require.NoError(t, err)
		assert.Equal(t, generated, parsed)
		assert.Len(t, generated.String(), 32)
	})
}

func TestParse_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"path traversal", "../etc/passwd"},
		{"sql fragment", "1' OR '1'='1"},
		{"null byte", "abc\x00def"},
		{"whitespace inside", "abc def"},
		{"unicode lookalike", "dеfault"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRoleID(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestNewHex_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for range 100 {
		v := NewHex()
		_, dup := seen[v]
		require.False(t, dup)
		seen[v] = struct{}{}
	}
}
