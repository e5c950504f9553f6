package prior

import (
	"github.com/cognicore/pem/pkg/pem/store"
)

// DefaultMaxCandidates is the number of entities kept per mention.
const DefaultMaxCandidates = 100

// DefaultRoundDigits is the precision of merged probabilities.
const DefaultRoundDigits = 3

// Config holds prior computation parameters.
type Config struct {
	MaxCandidates int `yaml:"max_candidates"`
	RoundDigits   int `yaml:"round_digits"`
}

// DefaultConfig returns the parameters used for the published tables.
func DefaultConfig() Config {
	return Config{
		MaxCandidates: DefaultMaxCandidates,
		RoundDigits:   DefaultRoundDigits,
	}
}

// Candidate is one entity of a mention's distribution.
type Candidate struct {
	Entity string
	Prob   float64
}

// Distribution is p(e|m) for one mention, most probable entity first
// until a merge appends new entities.
type Distribution []Candidate

// Sum returns the total probability mass.
func (d Distribution) Sum() float64 {
	var sum float64
	for _, c := range d {
		sum += c.Prob
	}
	return sum
}

// Index returns the position of entity, or -1.
func (d Distribution) Index(entity string) int {
	for i, c := range d {
		if c.Entity == entity {
			return i
		}
	}
	return -1
}

// Calculator turns accumulated counts into distributions.
type Calculator struct {
	maxCandidates int
}

// NewCalculator creates a calculator; a non-positive MaxCandidates falls
// back to DefaultMaxCandidates.
func NewCalculator(cfg Config) *Calculator {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	return &Calculator{maxCandidates: cfg.MaxCandidates}
}

// MaxCandidates returns the per-mention cap.
func (c *Calculator) MaxCandidates() int { return c.maxCandidates }

// Compute normalizes the counts of mention over its top entities:
//
//	p(e|m) = count(m, e) / Σ count(m, e')   for the kept e'
//
// Counts are ranked highest first with a stable sort, so equal counts
// keep their input order. The mention is dropped (false) when it is
// empty or its kept counts sum to less than one.
func (c *Calculator) Compute(mention string, counts []store.EntityCount) (Distribution, bool) {
	if mention == "" || len(counts) == 0 {
		return nil, false
	}

	ranked := make([]store.EntityCount, len(counts))
	copy(ranked, counts)
	store.SortCounts(ranked)
	if len(ranked) > c.maxCandidates {
		ranked = ranked[:c.maxCandidates]
	}

	var total int64
	for _, ec := range ranked {
		total += ec.Count
	}
	if total < 1 {
		return nil, false
	}

	dist := make(Distribution, 0, len(ranked))
	for _, ec := range ranked {
		if ec.Count <= 0 {
			continue
		}
		dist = append(dist, Candidate{Entity: ec.Entity, Prob: float64(ec.Count) / float64(total)})
	}
	return dist, true
}

// Uniform gives every distinct entity of mention the same probability,
// ignoring how often each pair was seen. The first MaxCandidates
// entities in input order are kept.
func (c *Calculator) Uniform(mention string, counts []store.EntityCount) (Distribution, bool) {
	if mention == "" {
		return nil, false
	}

	seen := make(map[string]struct{}, len(counts))
	var entities []string
	for _, ec := range counts {
		if ec.Count < 1 {
			continue
		}
		if _, ok := seen[ec.Entity]; ok {
			continue
		}
		seen[ec.Entity] = struct{}{}
		entities = append(entities, ec.Entity)
		if len(entities) == c.maxCandidates {
			break
		}
	}
	if len(entities) == 0 {
		return nil, false
	}

	p := 1 / float64(len(entities))
	dist := make(Distribution, len(entities))
	for i, e := range entities {
		dist[i] = Candidate{Entity: e, Prob: p}
	}
	return dist, true
}
