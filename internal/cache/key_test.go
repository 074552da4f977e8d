package cache

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveKey(t *testing.T) {
	hex16 := regexp.MustCompile(`^[0-9a-f]{16}$`)

	base := DeriveKey("user-1", "hello", 5)
	assert.Regexp(t, hex16, base)
	assert.Equal(t, base, DeriveKey("user-1", "hello", 5), "must be stable")

	tests := []struct {
		name      string
		subject   string
		query     string
		topK      int
		wantEqual bool
	}{
		{name: "same inputs", subject: "user-1", query: "hello", topK: 5, wantEqual: true},
		{name: "different subject", subject: "user-2", query: "hello", topK: 5},
		{name: "different query", subject: "user-1", query: "hello!", topK: 5},
		{name: "different topK", subject: "user-1", query: "hello", topK: 6},
		{name: "shifted boundary", subject: "user-1h", query: "ello", topK: 5},
		{name: "query case matters", subject: "user-1", query: "Hello", topK: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveKey(tt.subject, tt.query, tt.topK)
			assert.Regexp(t, hex16, got)
			if tt.wantEqual {
				assert.Equal(t, base, got)
			} else {
				assert.NotEqual(t, base, got)
			}
		})
	}
}

func TestDeriveKey_EmptyParts(t *testing.T) {
	assert.NotEqual(t, DeriveKey("", "ab", 1), DeriveKey("a", "b", 1))
	assert.Len(t, DeriveKey("", "", 0), 16)
}
