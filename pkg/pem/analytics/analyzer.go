package analytics

import (
	"context"
	"math"
	"sort"

	"github.com/cognicore/pem/pkg/pem/prior"
)

// Bucket is one range of the candidate-count histogram.
type Bucket struct {
	Label    string
	Min, Max int // inclusive; Max 0 means unbounded
	Mentions int64
}

// histogramBounds lists the candidate-count ranges reported.
var histogramBounds = []Bucket{
	{Label: "1", Min: 1, Max: 1},
	{Label: "2-5", Min: 2, Max: 5},
	{Label: "6-20", Min: 6, Max: 20},
	{Label: "21-100", Min: 21, Max: 100},
	{Label: "101+", Min: 101},
}

// Analyzer aggregates per-mention statistics of a prior table.
type Analyzer struct {
	mentions   int64
	candidates int64
	ambiguous  int64
	entropySum float64
	histogram  []Bucket
	freq       map[string]int64
	sizes      map[string]int
}

// NewAnalyzer creates an empty analyzer.
func NewAnalyzer() *Analyzer {
	h := make([]Bucket, len(histogramBounds))
	copy(h, histogramBounds)
	return &Analyzer{
		histogram: h,
		freq:      make(map[string]int64),
		sizes:     make(map[string]int),
	}
}

// Process consumes one mention's distribution and total frequency.
func (a *Analyzer) Process(mention string, d prior.Distribution, freq int64) {
	n := len(d)
	if n == 0 {
		return
	}
	a.mentions++
	a.candidates += int64(n)
	if n > 1 {
		a.ambiguous++
	}
	a.entropySum += entropy(d)
	for i := range a.histogram {
		b := &a.histogram[i]
		if n >= b.Min && (b.Max == 0 || n <= b.Max) {
			b.Mentions++
			break
		}
	}
	a.freq[mention] = freq
	a.sizes[mention] = n
}

// Stats is a point-in-time summary.
type Stats struct {
	Mentions       int64
	Candidates     int64
	Ambiguous      int64
	MeanCandidates float64
	MeanEntropy    float64 // nats
	Histogram      []Bucket

	freq  map[string]int64
	sizes map[string]int
}

// Snapshot returns the current summary.
func (a *Analyzer) Snapshot() Stats {
	s := Stats{
		Mentions:   a.mentions,
		Candidates: a.candidates,
		Ambiguous:  a.ambiguous,
		Histogram:  append([]Bucket(nil), a.histogram...),
		freq:       make(map[string]int64, len(a.freq)),
		sizes:      make(map[string]int, len(a.sizes)),
	}
	if a.mentions > 0 {
		s.MeanCandidates = float64(a.candidates) / float64(a.mentions)
		s.MeanEntropy = a.entropySum / float64(a.mentions)
	}
	for k, v := range a.freq {
		s.freq[k] = v
	}
	for k, v := range a.sizes {
		s.sizes[k] = v
	}
	return s
}

// MentionStat describes one mention in a top list.
type MentionStat struct {
	Mention    string
	Freq       int64
	Candidates int
}

// TopMentions returns the most frequent mentions, ties by mention.
func (s Stats) TopMentions(limit int) []MentionStat {
	out := make([]MentionStat, 0, len(s.freq))
	for m, f := range s.freq {
		out = append(out, MentionStat{Mention: m, Freq: f, Candidates: s.sizes[m]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Freq != out[j].Freq {
			return out[i].Freq > out[j].Freq
		}
		return out[i].Mention < out[j].Mention
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FreqLookup supplies mention frequencies.
type FreqLookup interface {
	MentionFreq(ctx context.Context, mention string) (int64, error)
}

// AnalyzeTable runs an analyzer over every mention of table. freq may be
// nil, in which case frequencies are reported as 0.
func AnalyzeTable(ctx context.Context, table *prior.Table, freq FreqLookup) (Stats, error) {
	a := NewAnalyzer()
	err := table.Each(func(mention string, d prior.Distribution) error {
		var f int64
		if freq != nil {
			var err error
			if f, err = freq.MentionFreq(ctx, mention); err != nil {
				return err
			}
		}
		a.Process(mention, d, f)
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return a.Snapshot(), nil
}

// entropy computes the Shannon entropy of a distribution, renormalized
// since merged distributions may not sum to one.
func entropy(d prior.Distribution) float64 {
	total := d.Sum()
	if total <= 0 {
		return 0
	}
	var h float64
	for _, c := range d {
		if c.Prob <= 0 {
			continue
		}
		p := c.Prob / total
		h -= p * math.Log(p)
	}
	return h
}
