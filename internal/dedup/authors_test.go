package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple name", "John Smith", "john smith"},
		{"uppercase", "JOHN SMITH", "john smith"},
		{"last comma first", "Smith, John", "john smith"},
		{"last comma first with initial", "Smith, J.", "j smith"},
		{"comma with empty first", "Smith,", "smith"},
		{"periods dropped", "J. R. R. Tolkien", "j r r tolkien"},
		{"hyphen dropped", "Jean-Paul Sartre", "jeanpaul sartre"},
		{"apostrophe dropped", "O'Brien", "obrien"},
		{"extra whitespace", "  John   Smith  ", "john smith"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"unicode letters kept", "José García", "josé garcía"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestAuthorOverlap(t *testing.T) {
	tests := []struct {
		name     string
		a        []string
		b        []string
		expected float64
	}{
		{
			name:     "identical lists",
			a:        []string{"John Smith", "Emily Johnson"},
			b:        []string{"John Smith", "Emily Johnson"},
			expected: 1.0,
		},
		{
			name:     "identical after normalization",
			a:        []string{"Smith, John"},
			b:        []string{"john smith"},
			expected: 1.0,
		},
		{
			name:     "empty first list",
			a:        nil,
			b:        []string{"John Smith"},
			expected: 0.0,
		},
		{
			name:     "empty second list",
			a:        []string{"John Smith"},
			b:        nil,
			expected: 0.0,
		},
		{
			name:     "disjoint lists",
			a:        []string{"John Smith"},
			b:        []string{"Emily Johnson"},
			expected: 0.0,
		},
		{
			name:     "initial matches full first name",
			a:        []string{"J Smith"},
			b:        []string{"John Smith"},
			expected: 0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, AuthorOverlap(tt.a, tt.b), 0.001)
		})
	}

	t.Run("symmetric", func(t *testing.T) {
		a := []string{"John Smith", "E Johnson"}
		b := []string{"J Smith", "Emily Johnson", "Michael Brown"}
		assert.InDelta(t, AuthorOverlap(a, b), AuthorOverlap(b, a), 0.0001)
	})

	t.Run("partial overlap between result bounds", func(t *testing.T) {
		a := []string{"John Smith", "Emily Johnson"}
		b := []string{"John Smith", "Michael Brown"}
		score := AuthorOverlap(a, b)
		assert.Greater(t, score, 0.0)
		assert.Less(t, score, 1.0)
	})
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{"exact match", "john smith", "john smith", 1.0},
		{"initial match", "j smith", "john smith", 0.9},
		{"last name only", "smith", "john smith", 0.7},
		{"different first names", "jane smith", "john smith", 0.3},
		{"different last names", "john smith", "john jones", 0.0},
		{"empty name", "", "john smith", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, nameSimilarity(tt.a, tt.b), 0.001)
		})
	}
}
