package memory

import (
	"strings"
)

// tokenize splits text into lowercase word tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127) // keep unicode chars
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len(w) > 1 { // skip single chars
			result = append(result, w)
		}
	}
	return result
}

type wordSet map[string]struct{}

func words(texts ...string) wordSet {
	set := make(wordSet)
	for _, t := range texts {
		for _, w := range tokenize(t) {
			set[w] = struct{}{}
		}
	}
	return set
}

// nodeWords is the word set of a node's concept and description.
func nodeWords(n *KnowledgeNode) wordSet {
	return words(n.Concept, n.Description)
}

// jaccard is |a ∩ b| / |a ∪ b|, or 0 when both are empty.
func jaccard(a, b wordSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	var inter int
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similarity is the Jaccard overlap of two nodes' word sets.
func Similarity(a, b KnowledgeNode) float64 {
	return jaccard(nodeWords(&a), nodeWords(&b))
}
