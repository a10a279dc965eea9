package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
)

func TestNormalize(t *testing.T) {
	t.Run("lowercases the host only", func(t *testing.T) {
		got, err := Normalize("  Alice.Smith@Example.ORG ")
		require.NoError(t, err)
		assert.Equal(t, "Alice.Smith@example.org", got)
	})

	t.Run("empty is allowed", func(t *testing.T) {
		got, err := Normalize("   ")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	for _, bad := range []string{"alice", "Alice <alice@example.org>", "@example.org", "alice@"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := Normalize(bad)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}
