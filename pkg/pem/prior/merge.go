package prior

import (
	"math"
)

// MergeStats reports what a merge changed.
type MergeStats struct {
	Inserted int // secondary mentions new to the primary table
	Updated  int // secondary mentions already in the primary table
	Added    int // entities appended to existing mentions
	Capped   int // probabilities clipped to 1
}

// Merge folds secondary into primary. A mention missing from primary is
// inserted whole. For a shared mention every secondary entity gets
//
//	round(min(1, p_primary + p_secondary), digits)
//
// with p_primary = 0 for entities the primary lacks; those are appended
// after the existing entries. Primary-only entities are untouched.
// The result depends on merge order once the cap applies.
func Merge(primary, secondary *Table, digits int) MergeStats {
	var stats MergeStats
	_ = secondary.Each(func(mention string, sec Distribution) error {
		cur, ok := primary.Get(mention)
		if !ok {
			stats.Inserted++
			primary.Set(mention, append(Distribution(nil), sec...))
			return nil
		}

		stats.Updated++
		merged := append(Distribution(nil), cur...)
		for _, c := range sec {
			i := merged.Index(c.Entity)
			if i < 0 {
				stats.Added++
				merged = append(merged, Candidate{Entity: c.Entity})
				i = len(merged) - 1
			}
			sum := merged[i].Prob + c.Prob
			if sum > 1 {
				stats.Capped++
				sum = 1
			}
			merged[i].Prob = Round(sum, digits)
		}
		primary.Set(mention, merged)
		return nil
	})
	return stats
}

// Round rounds p to digits decimals: p is scaled by 10^digits, rounded
// half to even and scaled back, so halfway cases are decided on the
// scaled value.
func Round(p float64, digits int) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return p
	}
	pow10 := math.Pow10(digits)
	return math.RoundToEven(p*pow10) / pow10
}
