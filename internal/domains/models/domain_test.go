package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/ids"
)

var now = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestNewDomain(t *testing.T) {
	t.Run("trims the name and sets timestamps", func(t *testing.T) {
		d, err := NewDomain("d1", "  Engineering ", "desc", true, now)
		require.NoError(t, err)
		assert.Equal(t, "Engineering", d.Name)
		assert.Equal(t, now, d.CreatedAt)
		assert.Equal(t, now, d.UpdatedAt)
		assert.True(t, d.Enabled)
	})

	tests := []struct {
		name        string
		id          ids.DomainID
		domainName  string
		description string
	}{
		{"empty ID", "", "ok", ""},
		{"blank name", "d1", "   ", ""},
		{"overlong name", "d1", strings.Repeat("n", MaxNameLength+1), ""},
		{"overlong description", "d1", "ok", strings.Repeat("d", MaxDescriptionLength+1)},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := NewDomain(tt.id, tt.domainName, tt.description, true, now)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}

	t.Run("counts characters, not bytes", func(t *testing.T) {
		_, err := NewDomain("d1", strings.Repeat("é", MaxNameLength), "", true, now)
		require.NoError(t, err)
	})
}

func TestCanDelete(t *testing.T) {
	t.Run("enabled domain is forbidden", func(t *testing.T) {
		d, _ := NewDomain("d1", "a", "", true, now)
		err := d.CanDelete("default")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("disabled domain may be deleted", func(t *testing.T) {
		d, _ := NewDomain("d1", "a", "", false, now)
		assert.NoError(t, d.CanDelete("default"))
	})

	t.Run("default domain is forbidden even when disabled", func(t *testing.T) {
		d, _ := NewDomain("default", "Default", "", false, now)
		err := d.CanDelete("default")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("no default configured", func(t *testing.T) {
		d, _ := NewDomain("default", "Default", "", false, now)
		assert.NoError(t, d.CanDelete(""))
	})
}

func TestPatch(t *testing.T) {
	later := now.Add(time.Hour)

	t.Run("applies only set fields", func(t *testing.T) {
		d, _ := NewDomain("d1", "a", "keep", true, now)
		p := Patch{Enabled: ptr(false)}
		require.NoError(t, d.CanApply(p, "default"))
		d.ApplyPatch(p, later)
		assert.Equal(t, "a", d.Name)
		assert.Equal(t, "keep", d.Description)
		assert.False(t, d.Enabled)
		assert.Equal(t, later, d.UpdatedAt)
		assert.Equal(t, now, d.CreatedAt)
	})

	t.Run("trims a new name", func(t *testing.T) {
		d, _ := NewDomain("d1", "a", "", true, now)
		p := Patch{Name: ptr(" b ")}
		require.NoError(t, d.CanApply(p, "default"))
		d.ApplyPatch(p, later)
		assert.Equal(t, "b", d.Name)
	})

	t.Run("rejects an invalid name", func(t *testing.T) {
		d, _ := NewDomain("d1", "a", "", true, now)
		err := d.CanApply(Patch{Name: ptr("")}, "default")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("forbids disabling the default domain", func(t *testing.T) {
		d, _ := NewDomain("default", "Default", "", true, now)
		err := d.CanApply(Patch{Enabled: ptr(false)}, "default")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
		assert.NoError(t, d.CanApply(Patch{Description: ptr("x")}, "default"))
	})

	t.Run("empty patch", func(t *testing.T) {
		assert.True(t, Patch{}.IsEmpty())
		assert.False(t, Patch{Description: ptr("")}.IsEmpty())
	})
}

func TestFilter(t *testing.T) {
	d, _ := NewDomain("d1", "Engineering", "", false, now)

	assert.True(t, Filter{}.Matches(d))
	assert.True(t, Filter{Name: "engineering"}.Matches(d))
	assert.False(t, Filter{Name: "sales"}.Matches(d))
	assert.True(t, Filter{Enabled: ptr(false)}.Matches(d))
	assert.False(t, Filter{Name: "Engineering", Enabled: ptr(true)}.Matches(d))
}

func TestPurgeReport(t *testing.T) {
	r := PurgeReport{Users: 2, Groups: 1, Projects: 3, Credentials: 4, Memberships: 1, Grants: 5}
	assert.Equal(t, 16, r.Total())
	counts := r.Counts()
	assert.Equal(t, 2, counts["users"])
	assert.Equal(t, 5, counts["grants"])
	assert.Len(t, counts, 6)
}
