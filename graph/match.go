package graph

import "strings"

// Distance computes the Levenshtein edit distance between two strings.
// Grounded on the teacher's apoc/text.Distance (dynamic-programming matrix,
// same row/column initialization and cost rule); generalized here to operate
// on runes rather than bytes so multi-byte characters count as one edit.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// matchString reports whether candidate satisfies the given MatchKind
// against filterValue.
func matchString(candidate, filterValue string, kind MatchKind) bool {
	switch kind.kind {
	case kindExact:
		return matchExact(candidate, filterValue, kind.location)
	case kindFuzzy:
		return matchFuzzy(candidate, filterValue, kind.location, kind.distance)
	default:
		return false
	}
}

func matchExact(candidate, filterValue string, location MatchLocation) bool {
	switch location {
	case LocationFull:
		return candidate == filterValue
	case LocationPrefix:
		return strings.HasPrefix(candidate, filterValue)
	case LocationWords:
		return wordsSubsetOf(filterValue, candidate)
	case LocationPrefixWords:
		return prefixWordsSubsetOf(filterValue, candidate)
	default:
		return false
	}
}

func matchFuzzy(candidate, filterValue string, location MatchLocation, distance int) bool {
	switch location {
	case LocationFull:
		return Distance(candidate, filterValue) <= distance
	case LocationPrefix:
		prefixLen := len([]rune(filterValue))
		r := []rune(candidate)
		if prefixLen > len(r) {
			prefixLen = len(r)
		}
		return Distance(string(r[:prefixLen]), filterValue) <= distance
	case LocationWords, LocationPrefixWords:
		for _, fw := range strings.Fields(filterValue) {
			if !anyWordWithin(fw, candidate, distance) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// wordsSubsetOf reports whether every word of filterValue appears as a whole
// word in candidate, in any order.
func wordsSubsetOf(filterValue, candidate string) bool {
	have := make(map[string]bool)
	for _, w := range strings.Fields(candidate) {
		have[w] = true
	}
	for _, w := range strings.Fields(filterValue) {
		if !have[w] {
			return false
		}
	}
	return true
}

// prefixWordsSubsetOf reports whether every word of filterValue is a prefix
// of some word in candidate.
func prefixWordsSubsetOf(filterValue, candidate string) bool {
	candidateWords := strings.Fields(candidate)
	for _, fw := range strings.Fields(filterValue) {
		found := false
		for _, cw := range candidateWords {
			if strings.HasPrefix(cw, fw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func anyWordWithin(filterWord, candidate string, distance int) bool {
	for _, cw := range strings.Fields(candidate) {
		if Distance(cw, filterWord) <= distance {
			return true
		}
	}
	return false
}

// hasFacetUnder reports whether any of the given facets falls at or below the
// given `/`-separated hierarchical prefix (e.g. "org" matches "org/eng").
func hasFacetUnder(facets []string, prefix string) bool {
	for _, f := range facets {
		if f == prefix || strings.HasPrefix(f, prefix+"/") {
			return true
		}
	}
	return false
}
