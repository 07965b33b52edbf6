package metrics

import (
	"math"

	"github.com/rawblock/babel-engine/pkg/models"
)

// Agreement metrics between two views of the same result set.
//
// Reweighting the coherence scorer reorders results and moves pages between
// confidence buckets. These metrics quantify how much: KendallTau compares
// two full orderings, OverlapAtK compares what a user actually sees, and
// BucketAgreement compares confidence assignments corrected for chance.
// The calibrate tool prints all three when evaluating a weight change.

// KendallTau computes the rank correlation between two orderings of the
// same items. Addresses present in only one ordering are ignored.
//
// tau = (concordant - discordant) / C(n, 2)
//
// Values range from -1 (one ordering is the reverse of the other) to 1
// (identical order). Fewer than two common items yields 0.
func KendallTau(a, b []string) float64 {
	rankB := make(map[string]int, len(b))
	for i, addr := range b {
		rankB[addr] = i
	}

	// Common items in a's order, each carrying its rank in b.
	var ranks []int
	for _, addr := range a {
		if r, ok := rankB[addr]; ok {
			ranks = append(ranks, r)
		}
	}
	n := len(ranks)
	if n < 2 {
		return 0.0
	}

	concordant, discordant := 0, 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if ranks[i] < ranks[j] {
				concordant++
			} else {
				discordant++
			}
		}
	}
	return float64(concordant-discordant) / comb2(n)
}

// OverlapAtK is the fraction of the top k of one ordering that also appears
// in the top k of the other. 1 means the visible result set is unchanged,
// whatever the internal order. k larger than either list is truncated.
func OverlapAtK(a, b []string, k int) float64 {
	if k > len(a) {
		k = len(a)
	}
	if k > len(b) {
		k = len(b)
	}
	if k <= 0 {
		return 0.0
	}

	top := make(map[string]struct{}, k)
	for _, addr := range a[:k] {
		top[addr] = struct{}{}
	}
	shared := 0
	for _, addr := range b[:k] {
		if _, ok := top[addr]; ok {
			shared++
		}
	}
	return float64(shared) / float64(k)
}

// BucketAgreement measures how consistently two scoring configurations
// assign the same pages to confidence buckets, corrected for chance
// agreement via pair counting:
//
//	agreement = (pairs together in both + pairs apart in both) / C(n, 2)
//	adjusted  = (agreement - expected) / (1 - expected)
//
// 1 means identical bucketing, 0 means no better than chance, negative
// means systematic disagreement. Slices must be parallel; a length
// mismatch or fewer than two pages yields 0.
func BucketAgreement(a, b []models.ConfidenceLevel) float64 {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0.0
	}

	// Contingency counts: nab[bucket in a][bucket in b].
	nab := make(map[models.ConfidenceLevel]map[models.ConfidenceLevel]int)
	na := make(map[models.ConfidenceLevel]int)
	nb := make(map[models.ConfidenceLevel]int)
	for i := 0; i < n; i++ {
		if nab[a[i]] == nil {
			nab[a[i]] = make(map[models.ConfidenceLevel]int)
		}
		nab[a[i]][b[i]]++
		na[a[i]]++
		nb[b[i]]++
	}

	// Pairs together in both assignments.
	together := 0.0
	for _, row := range nab {
		for _, c := range row {
			together += comb2(c)
		}
	}
	togetherA := 0.0
	for _, c := range na {
		togetherA += comb2(c)
	}
	togetherB := 0.0
	for _, c := range nb {
		togetherB += comb2(c)
	}

	total := comb2(n)
	// Pairs apart in both = total - together in a - together in b + together in both.
	agreement := (together + total - togetherA - togetherB + together) / total
	expected := (togetherA*togetherB + (total-togetherA)*(total-togetherB)) / (total * total)

	if math.Abs(1-expected) < 1e-12 {
		return 1.0
	}
	return (agreement - expected) / (1 - expected)
}

// comb2 computes C(n, 2) = n*(n-1)/2.
func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2.0
}
