package slate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		raw  string
		want Version
	}{
		{"1.4.2", Version{Major: 1, Minor: 4, Patch: 2}},
		{"0.10.0", Version{Minor: 10}},
		{"2.0.0-rc.1", Version{Major: 2, Prerelease: "rc.1"}},
		{"1.4.2-beta+build.7", Version{Major: 1, Minor: 4, Patch: 2, Prerelease: "beta", Build: "build.7"}},
		{" 1.0.0 ", Version{Major: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseVersion(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, raw := range []string{"", "1", "1.4", "v1.4.2", "1.4.x", "one.two.three"} {
		_, err := ParseVersion(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.1", "1.0.0", 1},
		{"1.2.0", "1.10.0", -1},
		{"2.0.0", "1.99.99", 1},
		{"1.0.0-rc.1", "1.0.0", -1},
		{"1.0.0-rc.2", "1.0.0-rc.1", 1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
		{"1.0.0-rc.1.2", "1.0.0-rc.1", 1},
		{"1.0.0-1", "1.0.0-alpha", -1},
		{"1.0.0+build.9", "1.0.0+build.1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			a, err := ParseVersion(tt.a)
			require.NoError(t, err)
			b, err := ParseVersion(tt.b)
			require.NoError(t, err)

			assert.Equal(t, tt.want, a.Compare(b))
			assert.Equal(t, -tt.want, b.Compare(a))
		})
	}
}

func TestVersionAtLeastAndString(t *testing.T) {
	v, err := ParseVersion("1.4.2-rc.1+build.7")
	require.NoError(t, err)
	assert.Equal(t, "1.4.2-rc.1+build.7", v.String())

	assert.True(t, v.AtLeast(Version{Major: 1}))
	assert.True(t, v.AtLeast(Version{Major: 1, Minor: 4, Patch: 1}))
	assert.False(t, v.AtLeast(Version{Major: 1, Minor: 4, Patch: 2}), "a prerelease sorts below its release")
	assert.False(t, v.AtLeast(Version{Major: 2}))
}
