// Package similarity implements the text-similarity kernel used by the
// recall-answer loop to detect convergence and query cycles: token-Jaccard
// overlap combined with a character-level longest-common-subsequence ratio.
package similarity

import (
	"fmt"
	"strings"
	"unicode"
)

// Normalize lowercases text, strips punctuation, and collapses whitespace —
// the same normalization the loop applies before comparing any two strings.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		lr := unicode.ToLower(r)
		if unicode.IsPunct(lr) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(lr)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize splits normalized text on whitespace into tokens.
func Tokenize(s string) []string {
	n := Normalize(s)
	if n == "" {
		return nil
	}
	return strings.Fields(n)
}

// Jaccard returns the token-set Jaccard similarity of a and b. Two empty
// token sets are defined as identical (1.0); one empty and one non-empty
// set has zero overlap (0.0).
func Jaccard(a, b string) float64 {
	ta, tb := Tokenize(a), Tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	setA := make(map[string]bool, len(ta))
	for _, t := range ta {
		setA[t] = true
	}
	setB := make(map[string]bool, len(tb))
	for _, t := range tb {
		setB[t] = true
	}
	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	union := len(setA)
	for t := range setB {
		if !setA[t] {
			union++
		}
	}
	if union == 0 {
		return 1.0
	}
	return float64(inter) / float64(union)
}

// SequenceRatio returns a similarity ratio over the normalized strings
// equivalent to Python's difflib.SequenceMatcher(None, a, b).ratio():
// 2*M / T where M is the total length of matching blocks found by
// recursively taking the longest matching block and then the longest
// matching blocks of what's left on either side, and T is the sum of the
// two string lengths.
func SequenceRatio(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if len(na) == 0 && len(nb) == 0 {
		return 1.0
	}
	m := matchingBlockTotal([]rune(na), []rune(nb))
	total := len([]rune(na)) + len([]rune(nb))
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(m) / float64(total)
}

// matchingBlockTotal sums the lengths of the matching blocks discovered by
// recursively finding the longest common contiguous substring, then
// recursing into the unmatched prefix and suffix on each side — the same
// divide-and-conquer approach difflib.SequenceMatcher uses internally.
func matchingBlockTotal(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingBlockTotal(a[:ai], b[:bi])
	total += matchingBlockTotal(a[ai+size:], b[bi+size:])
	return total
}

// longestMatch finds the longest common contiguous run between a and b
// using a rolling hash table of b's substrings keyed by starting rune,
// extended greedily — O(len(a)*len(b)) worst case, adequate for the short
// strings (queries, answer fragments) this package compares.
func longestMatch(a, b []rune) (aStart, bStart, size int) {
	// Index b's positions by rune for quick candidate lookup.
	bIndex := make(map[rune][]int, len(b))
	for j, r := range b {
		bIndex[r] = append(bIndex[r], j)
	}

	best := 0
	bestAI, bestBI := 0, 0
	// prevLen[j] = length of match ending at a[i-1], b[j-1]
	prevLen := make(map[int]int)
	for i := 0; i < len(a); i++ {
		curLen := make(map[int]int)
		for _, j := range bIndex[a[i]] {
			l := prevLen[j-1] + 1
			curLen[j] = l
			if l > best {
				best = l
				bestAI = i - l + 1
				bestBI = j - l + 1
			}
		}
		prevLen = curLen
	}
	return bestAI, bestBI, best
}

// Similarity returns the weighted mean of token-Jaccard and
// character-sequence similarity. Weights must be non-negative and sum to a
// positive value.
func Similarity(a, b string, jaccardWeight, sequenceWeight float64) (float64, error) {
	if jaccardWeight < 0 || sequenceWeight < 0 {
		return 0, fmt.Errorf("similarity: weights must be non-negative")
	}
	sum := jaccardWeight + sequenceWeight
	if sum <= 0 {
		return 0, fmt.Errorf("similarity: weights must sum to a positive value")
	}
	j := Jaccard(a, b)
	s := SequenceRatio(a, b)
	return (jaccardWeight*j + sequenceWeight*s) / sum, nil
}

// DefaultSimilarity applies the default 0.4/0.6 jaccard/sequence weighting.
func DefaultSimilarity(a, b string) float64 {
	v, _ := Similarity(a, b, 0.4, 0.6)
	return v
}

// IsFixedPoint reports whether two successive answers are similar enough
// (>= threshold, default 0.92) that the loop should stop iterating.
func IsFixedPoint(a, b string, threshold float64) bool {
	return DefaultSimilarity(a, b) >= threshold
}

// IsQueryCycle reports whether query repeats a prior query in history:
// true if query normalizes to empty, exactly matches any history entry
// after normalization, or is >= threshold (default 0.90) similar to the
// most recent history entry.
func IsQueryCycle(query string, history []string, threshold float64) bool {
	nq := Normalize(query)
	if nq == "" {
		return true
	}
	for _, h := range history {
		if Normalize(h) == nq {
			return true
		}
	}
	if len(history) == 0 {
		return false
	}
	last := history[len(history)-1]
	return DefaultSimilarity(query, last) >= threshold
}
