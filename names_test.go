package slate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEntityName(t *testing.T) {
	valid := []string{"sh010", "renderMain", "char_hero", "v001", "a", "comp.final", "take-2"}
	for _, name := range valid {
		assert.NoError(t, ValidateEntityName(name), "name %q", name)
	}

	invalid := []string{"", "sh 010", ".hidden", "trailing.", "-lead", "révision", "日本語"}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateEntityName(name), ErrInvalidName, "name %q", name)
	}
}

func TestSlugifyName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Shot 010", "Shot_010"},
		{"Révision finale", "Revision_finale"},
		{"char/hero:v2", "char_hero_v2"},
		{"  spaced   out  ", "spaced_out"},
		{"already_fine", "already_fine"},
		{"über.cool", "uber_cool"},
		{"---", ""},
		{"日本語", ""},
		{"mixed日本語tail", "mixedtail"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SlugifyName(tt.in))
		})
	}
}
