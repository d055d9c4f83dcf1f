package relevance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/scholarsearch/internal/domain"
)

func TestScoreLexical(t *testing.T) {
	records := []domain.Record{
		{ID: "a", Title: "Machine Learning for Healthcare", Abstract: "Machine learning methods applied to clinical data."},
		{ID: "b", Title: "Deep Learning in Vision", Abstract: "Convolutional networks for image recognition."},
		{ID: "c", Title: "Gardening Tips", Abstract: "How to grow tomatoes in your backyard."},
	}

	query := domain.Query{Text: "machine learning healthcare"}
	scored := ScoreLexical(query.Tokens(), records)

	require.Len(t, scored, 3)
	assert.Greater(t, scored[0].LexicalScore, scored[1].LexicalScore,
		"record matching all query terms should outscore a partial match")
	assert.Greater(t, scored[1].LexicalScore, scored[2].LexicalScore)
	assert.Zero(t, scored[2].LexicalScore, "record sharing no query terms scores zero")

	// Input records are not mutated.
	assert.Zero(t, records[0].LexicalScore)
}

func TestScoreLexical_EmptyInputs(t *testing.T) {
	records := []domain.Record{{ID: "a", Title: "Anything"}}

	assert.Empty(t, ScoreLexical([]string{"term"}, nil))
	assert.Equal(t, records, ScoreLexical(nil, records))
}

func TestRecallFilter(t *testing.T) {
	records := []domain.Record{
		{ID: "a", LexicalScore: 2.5},
		{ID: "b", LexicalScore: 0.01},
		{ID: "c", LexicalScore: 0.8},
	}

	kept := RecallFilter(records, 0.05)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ID)
	assert.Equal(t, "c", kept[1].ID)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"bert", "pre", "training", "of", "transformers"},
		tokenize("BERT: Pre-training of Transformers!"))
	assert.Empty(t, tokenize("  ...  "))
}
