package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"timeout", "timeout", 0},
		{"timout", "timeout", 1},
		{"max_retrys", "max_retries", 2},
		{"site", "size", 1},
		{"kitten", "sitting", 3},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, levenshtein(tt.a, tt.b))
		})
	}
}

func TestClosestMatch(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"timout", "timeout"},
		{"max_retrys", "max_retries"},
		{"siteid", "site_id"},
		{"rate_limits", "rate_limit"},
		{"completely_different", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, closestMatch(tt.in, knownKeysList))
		})
	}
}
