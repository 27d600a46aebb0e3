// Package suggest ranks candidate strings by similarity to a given input.
package suggest

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// MinScore is the lowest similarity a candidate needs to be suggested.
const MinScore = 0.5

type suggestion struct {
	text  string
	score float64
}

// Rank returns the candidates similar to given, most similar first.
func Rank(given string, candidates []string) []string {
	var result []suggestion
	for _, text := range candidates {
		score := Score(given, text)
		if score < MinScore {
			continue
		}
		result = append(result, suggestion{text: text, score: score})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].score > result[j].score
	})
	ranked := make([]string, len(result))
	for i, s := range result {
		ranked[i] = s.text
	}
	return ranked
}

// Closest returns the most similar candidate to given, if any is similar enough.
func Closest(given string, candidates []string) (string, bool) {
	ranked := Rank(given, candidates)
	if len(ranked) == 0 {
		return "", false
	}
	return ranked[0], true
}

// Score returns the case-insensitive similarity of given and suggestion in [0,1].
func Score(given, suggestion string) float64 {
	return levenshtein.Similarity(strings.ToLower(given), strings.ToLower(suggestion), nil)
}
