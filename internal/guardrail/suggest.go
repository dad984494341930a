package guardrail

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// minSimilarity is the lowest normalised similarity that counts as a close match
const minSimilarity = 0.6

// closestMatch returns the candidate with the smallest edit distance to word,
// if it is close enough to be a plausible typo. Ties go to the
// lexicographically first candidate.
func closestMatch(word string, candidates []string) (string, bool) {
	if word == "" || len(candidates) == 0 {
		return "", false
	}

	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	target := strings.ToLower(word)
	best := ""
	bestDist := -1
	for _, c := range sorted {
		d := levenshtein.ComputeDistance(target, strings.ToLower(c))
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}

	longest := len([]rune(target))
	if l := len([]rune(best)); l > longest {
		longest = l
	}
	if longest == 0 {
		return "", false
	}
	similarity := 1 - float64(bestDist)/float64(longest)
	if similarity < minSimilarity || strings.EqualFold(best, word) {
		return "", false
	}
	return best, true
}
