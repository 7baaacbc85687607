package search

import "github.com/poiesic/ragbot/core"

// RetrievalMonitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results.
type RetrievalMonitor interface {
	Start(query string, k int, minScore float64)
	AfterEmbedding(dimension int)
	AfterIndexSearch(candidates []core.Candidate)
	Rejected(candidate core.Candidate, score float64)
	AfterRerank(docs []core.ScoredChunk)
	Finish(results []core.ScoredChunk)
}

// noopMonitor is a no-op implementation of RetrievalMonitor
type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int, _ float64)     {}
func (n *noopMonitor) AfterEmbedding(_ int)                 {}
func (n *noopMonitor) AfterIndexSearch(_ []core.Candidate)  {}
func (n *noopMonitor) Rejected(_ core.Candidate, _ float64) {}
func (n *noopMonitor) AfterRerank(_ []core.ScoredChunk)     {}
func (n *noopMonitor) Finish(_ []core.ScoredChunk)          {}
