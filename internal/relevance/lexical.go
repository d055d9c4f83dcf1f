// Package relevance implements the two-stage relevance filter: a lenient
// BM25 lexical recall stage followed by neural reranking with a tiered
// fallback ladder.
package relevance

import (
	"math"
	"strings"
	"unicode"

	"github.com/helixir/scholarsearch/internal/domain"
)

// BM25 parameters. Standard values; the recall stage is threshold-lenient so
// tuning these has little effect on the final set.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// ScoreLexical computes a BM25 score for every record against the query
// terms and returns a copy of the records with LexicalScore populated. The
// corpus for document-frequency statistics is the record set itself.
func ScoreLexical(queryTerms []string, records []domain.Record) []domain.Record {
	if len(records) == 0 || len(queryTerms) == 0 {
		return records
	}

	docs := make([][]string, len(records))
	totalLen := 0
	for i, rec := range records {
		docs[i] = tokenize(rec.Title + " " + rec.Abstract)
		totalLen += len(docs[i])
	}
	avgLen := float64(totalLen) / float64(len(records))

	// Document frequency per query term.
	df := make(map[string]int, len(queryTerms))
	for _, doc := range docs {
		seen := make(map[string]bool, len(doc))
		for _, term := range doc {
			seen[term] = true
		}
		for _, term := range queryTerms {
			if seen[term] {
				df[term]++
			}
		}
	}

	n := float64(len(records))
	idf := make(map[string]float64, len(df))
	for term, freq := range df {
		idf[term] = math.Log(1 + (n-float64(freq)+0.5)/(float64(freq)+0.5))
	}

	scored := make([]domain.Record, len(records))
	for i, rec := range records {
		tf := make(map[string]int, len(docs[i]))
		for _, term := range docs[i] {
			tf[term]++
		}

		score := 0.0
		docLen := float64(len(docs[i]))
		for _, term := range queryTerms {
			freq := float64(tf[term])
			if freq == 0 {
				continue
			}
			norm := bm25K1 * (1 - bm25B + bm25B*docLen/avgLen)
			score += idf[term] * (freq * (bm25K1 + 1)) / (freq + norm)
		}
		scored[i] = rec.WithLexicalScore(score)
	}

	return scored
}

// RecallFilter keeps records at or above the recall threshold, preserving
// order. The threshold should be low: this stage reduces volume, precision
// comes from the neural stage.
func RecallFilter(records []domain.Record, threshold float64) []domain.Record {
	kept := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		if rec.LexicalScore >= threshold {
			kept = append(kept, rec)
		}
	}
	return kept
}

// tokenize splits text into lowercase alphanumeric terms.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
