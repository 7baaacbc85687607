package main

import (
	"fmt"
	"io"

	"github.com/poiesic/ragbot/core"
	"github.com/poiesic/ragbot/search"
)

// explainMonitor prints each retrieval stage for `search --explain`.
type explainMonitor struct {
	w io.Writer
}

var _ search.RetrievalMonitor = (*explainMonitor)(nil)

// orNil keeps a nil *explainMonitor from becoming a non-nil interface.
func (m *explainMonitor) orNil() search.RetrievalMonitor {
	if m == nil {
		return nil
	}
	return m
}

func (m *explainMonitor) Start(query string, k int, minScore float64) {
	fmt.Fprintf(m.w, "query %q k=%d min_score=%.2f\n", query, k, minScore)
}

func (m *explainMonitor) AfterEmbedding(dimension int) {
	fmt.Fprintf(m.w, "  embedded query (%d dimensions)\n", dimension)
}

func (m *explainMonitor) AfterIndexSearch(candidates []core.Candidate) {
	fmt.Fprintf(m.w, "  index returned %d candidates\n", len(candidates))
	for _, c := range candidates {
		fmt.Fprintf(m.w, "    %-24s similarity %.3f\n", c.Chunk.ID, 1-c.Distance)
	}
}

func (m *explainMonitor) Rejected(c core.Candidate, score float64) {
	fmt.Fprintf(m.w, "  rejected %s (score %.3f below threshold)\n", c.Chunk.ID, score)
}

func (m *explainMonitor) AfterRerank(docs []core.ScoredChunk) {
	fmt.Fprintf(m.w, "  after keyword rerank:\n")
	for _, d := range docs {
		fmt.Fprintf(m.w, "    %-24s score %.3f\n", d.ChunkID, d.ScoreOr(0))
	}
}

func (m *explainMonitor) Finish(results []core.ScoredChunk) {
	fmt.Fprintf(m.w, "  kept %d\n", len(results))
}
