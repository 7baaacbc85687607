package search

import "strings"

// CJK Unified Ideographs, the range that marks a Chinese key term.
const (
	cjkFirst = '一'
	cjkLast  = '鿿'
)

func isCJK(r rune) bool {
	return r >= cjkFirst && r <= cjkLast
}

func wordSet(lists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, w := range list {
			set[w] = struct{}{}
		}
	}
	return set
}

// windows returns every run of n consecutive characters in s.
func windows(s string, n int) []string {
	runes := []rune(s)
	if len(runes) < n {
		return nil
	}
	out := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		out = append(out, string(runes[i:i+n]))
	}
	return out
}

// rerankTerms extracts the Chinese key terms of a query: character windows
// starting with an ideograph that are not stop words.
func rerankTerms(query string, cfg KeywordConfig) []string {
	stop := wordSet(cfg.StopWords)
	seen := make(map[string]struct{})
	var terms []string
	for _, w := range windows(query, cfg.termLength()) {
		if _, ok := stop[w]; ok {
			continue
		}
		if !isCJK([]rune(w)[0]) {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}

// verifyTerms extracts the terms Verify looks for: query fragments between
// delimiters plus every character window that is not a stop word.
func verifyTerms(query string, cfg KeywordConfig) []string {
	n := cfg.termLength()
	stop := wordSet(cfg.StopWords, cfg.VerifierStopWords)
	seen := make(map[string]struct{})
	var terms []string
	add := func(term string) {
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}

	for _, delim := range cfg.Delimiters {
		for _, part := range strings.Split(query, delim) {
			part = strings.TrimSpace(part)
			if len([]rune(part)) >= n {
				add(part)
			}
		}
	}
	for _, w := range windows(query, n) {
		if _, ok := stop[w]; !ok {
			add(w)
		}
	}
	return terms
}
