package store

import (
	"regexp"
	"sort"
	"strings"
)

// wordRegex matches letter/digit sequences, unicode-aware.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// DefaultStopWords are common English words filtered out of notes and
// queries before matching.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by",
	"for", "if", "in", "into", "is", "it", "no", "not", "of",
	"on", "or", "such", "that", "the", "their", "then", "there",
	"these", "they", "this", "to", "was", "will", "with",
}

// minTokenLength filters out single-character noise tokens.
const minTokenLength = 2

// Tokenize splits text into lowercase terms, dropping stop words and
// tokens shorter than two characters.
func Tokenize(text string) []string {
	var tokens []string
	stop := defaultStopWordMap

	for _, word := range wordRegex.FindAllString(text, -1) {
		lower := strings.ToLower(word)
		if len(lower) < minTokenLength {
			continue
		}
		if _, isStop := stop[lower]; isStop {
			continue
		}
		tokens = append(tokens, lower)
	}

	return tokens
}

// UniqueTerms tokenizes text and deduplicates the result, sorted for
// deterministic query construction.
func UniqueTerms(text string) []string {
	seen := make(map[string]struct{})
	for _, t := range Tokenize(text) {
		seen[t] = struct{}{}
	}

	terms := make([]string, 0, len(seen))
	for t := range seen {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// BuildStopWordMap converts a slice of stop words to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

var defaultStopWordMap = BuildStopWordMap(DefaultStopWords)
