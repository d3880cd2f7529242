package detect

import (
	"sort"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/pii"
)

// mergeCandidates fuses entity candidates from multiple layers into a
// non-overlapping set. Exact duplicates (same span and type) collapse onto
// the highest-confidence copy first; the survivors are then solved as a
// weighted interval scheduling problem maximizing total confidence, so a
// pair of strong non-overlapping candidates always beats one weaker
// candidate spanning both.
func mergeCandidates(candidates []pii.Entity) []pii.Entity {
	if len(candidates) == 0 {
		return nil
	}

	candidates = dropDuplicates(candidates)

	// Sort by end offset for the interval DP.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].End != candidates[j].End {
			return candidates[i].End < candidates[j].End
		}
		return candidates[i].Start < candidates[j].Start
	})

	n := len(candidates)
	// prev[i] is the rightmost candidate ending at or before candidates[i]
	// starts, or -1.
	prev := make([]int, n)
	for i, c := range candidates {
		prev[i] = -1
		lo, hi := 0, i-1
		for lo <= hi {
			mid := (lo + hi) / 2
			if candidates[mid].End <= c.Start {
				prev[i] = mid
				lo = mid + 1
			} else {
				hi = mid - 1
			}
		}
	}

	// best[i] is the maximum total confidence using candidates[0..i].
	best := make([]float64, n+1)
	take := make([]bool, n)
	for i := 0; i < n; i++ {
		with := candidates[i].Confidence
		if prev[i] >= 0 {
			with += best[prev[i]+1]
		}
		if with > best[i] {
			best[i+1] = with
			take[i] = true
		} else {
			best[i+1] = best[i]
		}
	}

	var picked []pii.Entity
	for i := n - 1; i >= 0; {
		if take[i] {
			picked = append(picked, candidates[i])
			i = prev[i]
		} else {
			i--
		}
	}

	pii.SortByStart(picked)
	return picked
}

// dropDuplicates collapses candidates with identical span and type, keeping
// the copy with the highest confidence.
func dropDuplicates(candidates []pii.Entity) []pii.Entity {
	type spanKey struct {
		start, end int
		typ        pii.EntityType
	}
	byKey := make(map[spanKey]int, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		k := spanKey{c.Start, c.End, c.Type}
		if idx, ok := byKey[k]; ok {
			if c.Confidence > out[idx].Confidence {
				out[idx] = c
			}
			continue
		}
		byKey[k] = len(out)
		out = append(out, c)
	}
	return out
}
