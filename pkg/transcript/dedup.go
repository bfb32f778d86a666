package transcript

import "strings"

// DefaultSimilarityThreshold collapses a partial into its successor when the
// successor shares at least this fraction of the partial's word set.
const DefaultSimilarityThreshold = 0.7

// Dedup collapses overlapping interim partials into their more complete
// successors in a single pass over adjacent pairs. An element is dropped when
// its successor strictly extends it textually, or when the successor covers
// at least threshold of its word set. Output preserves original order with
// exact duplicates reduced to their first occurrence; the last element
// survives unless it was itself marked against its successor.
func Dedup(lines []string, threshold float64) []string {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	if len(lines) <= 1 {
		return append([]string(nil), lines...)
	}

	removed := markRedundant(lines, threshold)

	out := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for i, line := range lines {
		if removed[i] {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

func markRedundant(lines []string, threshold float64) []bool {
	removed := make([]bool, len(lines))
	for i := 0; i+1 < len(lines); i++ {
		cur, next := lines[i], lines[i+1]
		if cur != next && strings.HasPrefix(next, cur) {
			removed[i] = true
			continue
		}
		if similarity(cur, next) >= threshold {
			removed[i] = true
		}
	}
	return removed
}

// similarity is |wordset(a) ∩ wordset(b)| / |wordset(a)| over case-folded
// whitespace tokens.
func similarity(a, b string) float64 {
	aset := wordset(a)
	if len(aset) == 0 {
		return 0
	}
	bset := wordset(b)
	shared := 0
	for w := range aset {
		if _, ok := bset[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(aset))
}

func wordset(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
