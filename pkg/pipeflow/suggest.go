package pipeflow

import (
	"github.com/hbollon/go-edlib"
)

// closestName returns the entry of candidates with the smallest Levenshtein
// distance to name, or "" if candidates is empty or nothing is reasonably
// close. Used to turn a bare "not found" into a "did you mean" hint when a
// caller mistypes a node/pipeline/system name.
func closestName(name string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	best := ""
	bestDist := -1
	for _, c := range candidates {
		d, err := edlib.StringsSimilarity(name, c, edlib.Levenshtein)
		if err != nil {
			continue
		}
		dist := int((1 - float64(d)) * 100)
		if bestDist == -1 || dist < bestDist {
			bestDist = dist
			best = c
		}
	}
	// Levenshtein similarity close to 0 means "unrelated"; don't suggest.
	if bestDist > 70 {
		return ""
	}
	return best
}
