package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"nil stays nil", nil, nil},
		{"empty stays empty", []string{}, []string{}},
		{"trims and drops blanks", []string{" admin ", "", "  "}, []string{"admin"}},
		{"keeps first occurrence", []string{"reader", "admin", "reader"}, []string{"reader", "admin"}},
		{"case is significant", []string{"Admin", "admin"}, []string{"Admin", "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Dedupe(tt.input))
		})
	}
}

func TestDedupeFold(t *testing.T) {
	assert.Equal(t, []string{"admin", "reader"}, DedupeFold([]string{" Admin", "READER", "admin ", "Reader"}))
	assert.Nil(t, DedupeFold(nil))
}
