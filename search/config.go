package search

// KeywordConfig tunes the lexical stages of retrieval: reranking and
// relevance verification.
type KeywordConfig struct {
	// StopWords are never used as key terms.
	StopWords []string

	// VerifierStopWords are additionally ignored by Verify.
	VerifierStopWords []string

	// Delimiters split the query into fragments for Verify.
	Delimiters []string

	// MinTermLength is the window size for key terms and the minimum
	// length of a query fragment, in characters.
	MinTermLength int

	// BoostIncrement is added to a score for every key term found.
	BoostIncrement float64

	// VerificationThreshold is the fraction of query terms that must
	// appear in the retrieved text.
	VerificationThreshold float64
}

// DefaultKeywordConfig returns the settings tuned for mixed Chinese and
// English text.
func DefaultKeywordConfig() KeywordConfig {
	return KeywordConfig{
		StopWords: []string{
			"的", "是", "在", "了", "和", "与", "或", "但", "如果",
			"什么", "哪里", "谁", "如何", "为什么", "怎样", "几", "多少",
			"the", "is", "a", "an", "of", "to", "in", "for", "on", "at",
		},
		VerifierStopWords:     []string{"what", "where", "who", "how", "why", "when", "which"},
		Delimiters:            []string{"的", "是", "在", "了", "和", "或", " ", "?", "？", "一个", "这个"},
		MinTermLength:         2,
		BoostIncrement:        0.05,
		VerificationThreshold: 0.2,
	}
}

func (c KeywordConfig) termLength() int {
	if c.MinTermLength < 1 {
		return 2
	}
	return c.MinTermLength
}
