package domain

import (
	"github.com/agnivade/levenshtein"
)

// scoreEpsilon is the tolerance within which two candidate scores count as a
// tie and the deterministic tie-break applies.
const scoreEpsilon = 1e-9

// Matcher performs fuzzy similarity search over candidate entities. It is a
// pure function holder and safe for concurrent use.
type Matcher struct{}

// NewMatcher creates a Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// FindBestMatch scores normalizedName against every candidate's normalized
// canonical name and aliases, taking the maximum per candidate, and returns
// the single best candidate at or above threshold. Below threshold it
// returns (nil, bestScoreSeen) and the caller decides what "no match"
// means. Ties within epsilon are broken by higher mention count, then lower
// id.
func (m *Matcher) FindBestMatch(normalizedName string, candidates []*Entity, threshold float64) (*Entity, float64) {
	var best *Entity
	bestScore := 0.0

	for _, candidate := range candidates {
		score := m.entityScore(normalizedName, candidate)
		if best == nil || score > bestScore+scoreEpsilon {
			best = candidate
			bestScore = score
			continue
		}
		if score >= bestScore-scoreEpsilon {
			// Tie: prefer the better-established entity.
			if candidate.MentionCount > best.MentionCount ||
				(candidate.MentionCount == best.MentionCount && candidate.ID < best.ID) {
				best = candidate
				bestScore = score
			}
		}
	}

	if best == nil || bestScore < threshold {
		return nil, bestScore
	}
	return best, bestScore
}

// entityScore is the maximum similarity over the candidate's canonical name
// and all of its aliases.
func (m *Matcher) entityScore(normalizedName string, candidate *Entity) float64 {
	score := Similarity(normalizedName, candidate.NormalizedName)
	for _, alias := range candidate.Aliases {
		if s := Similarity(normalizedName, alias.NormalizedName); s > score {
			score = s
		}
	}
	return score
}

// Similarity returns a bounded 0.0-1.0 string similarity: Jaro-Winkler,
// backed by a normalized edit-distance ratio which handles short-string
// transpositions better. Reflexive: Similarity(s, s) == 1.0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	jw := jaroWinkler(a, b)

	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	dist := levenshtein.ComputeDistance(a, b)
	lev := 1.0 - float64(dist)/float64(maxLen)

	if lev > jw {
		return lev
	}
	return jw
}

// jaroWinkler computes Jaro similarity with the Winkler common-prefix bonus
// (0.1 per shared leading rune, capped at 4).
func jaroWinkler(a, b string) float64 {
	jaro := jaroSimilarity(a, b)
	if jaro == 0 {
		return 0
	}

	prefix := 0
	ra, rb := []rune(a), []rune(b)
	for prefix < len(ra) && prefix < len(rb) && prefix < 4 {
		if ra[prefix] != rb[prefix] {
			break
		}
		prefix++
	}

	return jaro + float64(prefix)*0.1*(1.0-jaro)
}

func jaroSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 || lb == 0 {
		return 0
	}

	matchWindow := la
	if lb > matchWindow {
		matchWindow = lb
	}
	matchWindow = matchWindow/2 - 1
	if matchWindow < 0 {
		matchWindow = 0
	}

	aMatched := make([]bool, la)
	bMatched := make([]bool, lb)

	matches := 0
	for i := 0; i < la; i++ {
		lo := i - matchWindow
		if lo < 0 {
			lo = 0
		}
		hi := i + matchWindow + 1
		if hi > lb {
			hi = lb
		}
		for j := lo; j < hi; j++ {
			if bMatched[j] || ra[i] != rb[j] {
				continue
			}
			aMatched[i] = true
			bMatched[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0
	}

	transpositions := 0
	j := 0
	for i := 0; i < la; i++ {
		if !aMatched[i] {
			continue
		}
		for !bMatched[j] {
			j++
		}
		if ra[i] != rb[j] {
			transpositions++
		}
		j++
	}
	transpositions /= 2

	fm := float64(matches)
	return (fm/float64(la) + fm/float64(lb) + (fm-float64(transpositions))/fm) / 3.0
}
