package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "single element",
			input:    []string{"a@x.com"},
			expected: []string{"a@x.com"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"111", "222", "111", "333", "222"},
			expected: []string{"111", "222", "333"},
		},
		{
			name:     "removes empty strings",
			input:    []string{"111", "", "222"},
			expected: []string{"111", "222"},
		},
		{
			name:     "does not trim whitespace",
			input:    []string{" 111", "111"},
			expected: []string{" 111", "111"},
		},
		{
			name:     "preserves case",
			input:    []string{"A@x.com", "a@x.com", "A@X.COM"},
			expected: []string{"A@x.com", "a@x.com", "A@X.COM"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			result := Dedupe(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 2}, Unique([]int64{3, 1, 3, 2, 1}))
	assert.Nil(t, Unique[int64](nil))
}
