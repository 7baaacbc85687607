package search

import (
	"math"
	"strings"

	"github.com/poiesic/ragbot/core"
)

// Rerank boosts each document's score by cfg.BoostIncrement for every key
// term of the query that appears in its content, capped at 1. Documents
// without a score are left unscored. Order is preserved and the input is
// not modified.
func Rerank(query string, docs []core.ScoredChunk, cfg KeywordConfig) []core.ScoredChunk {
	out := make([]core.ScoredChunk, len(docs))
	copy(out, docs)
	if len(docs) == 0 {
		return out
	}

	terms := rerankTerms(query, cfg)
	for i, doc := range out {
		if doc.Score == nil {
			continue
		}
		content := strings.ToLower(doc.Content)
		boost := 0.0
		for _, term := range terms {
			if strings.Contains(content, term) {
				boost += cfg.BoostIncrement
			}
		}
		out[i] = doc.WithScore(clampScore(*doc.Score + boost))
	}
	return out
}

// Verify reports whether the documents share enough terms with the query
// to be likely to answer it. It fails open when the query yields no terms.
func Verify(query string, docs []core.ScoredChunk, cfg KeywordConfig) bool {
	if len(docs) == 0 {
		return false
	}
	terms := verifyTerms(query, cfg)
	if len(terms) == 0 {
		return true
	}

	contents := make([]string, len(docs))
	for i, doc := range docs {
		contents[i] = doc.Content
	}
	all := strings.Join(contents, " ")

	matches := 0
	for _, term := range terms {
		if strings.Contains(all, term) {
			matches++
		}
	}
	return float64(matches) >= math.Max(1, float64(len(terms))*cfg.VerificationThreshold)
}

func clampScore(s float64) float64 {
	return min(1, max(0, s))
}
