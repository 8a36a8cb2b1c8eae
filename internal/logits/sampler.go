package logits

import (
	"errors"
	"math"
	"math/rand"
	"slices"

	"github.com/samcharles93/quill/internal/tensor"
)

// insertionLimit is the largest k served by the O(V*k) insertion pass; larger
// k falls back to a stable sort.
const insertionLimit = 64

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed        int64
	Temperature float32
	// TopK keeps only the K highest scores; 0 disables truncation.
	TopK int
}

// Sampler draws token ids from logits. It is not safe for concurrent use;
// each session owns one.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	topIdx []int
	topVal []float32
	keep   []bool
	prob   []float64
}

// NewSampler returns a new sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) (*Sampler, error) {
	if err := ValidateParams(cfg.Temperature, cfg.TopK); err != nil {
		return nil, err
	}
	return &Sampler{
		rng: rand.New(rand.NewSource(cfg.Seed)),
		cfg: cfg,
	}, nil
}

// Config returns the sampler configuration.
func (s *Sampler) Config() SamplerConfig { return s.cfg }

// Sample draws a single index from the provided logits vector:
//
//  1. The logits are divided by the temperature.
//  2. Unless TopK is 0, everything outside the TopK highest scores is
//     dropped from the distribution.
//  3. A softmax turns the scores into a distribution.
//  4. A value drawn from [0,1) selects an index by cumulative probability.
//
// TopK==1 returns the argmax directly without consuming the source. row is
// not modified.
func (s *Sampler) Sample(row []float32) (int, error) {
	if len(row) == 0 {
		return 0, errors.New("sample: empty logits")
	}
	if s.cfg.TopK == 1 {
		return tensor.Argmax(row), nil
	}
	prob := s.distribution(row, s.cfg.Temperature, s.cfg.TopK)
	return draw(prob, s.rng.Float64()), nil
}

// SampleBatch samples one id per row. Rows are drawn independently from the
// sampler's single source in row order, so results are reproducible for a
// fixed seed and batch shape.
func (s *Sampler) SampleBatch(rows [][]float32) ([]int, error) {
	out := make([]int, len(rows))
	for i, row := range rows {
		id, err := s.Sample(row)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// Distribution returns the filtered, normalised probabilities the sampler
// would draw from for row.
func Distribution(row []float32, temperature float32, topK int) ([]float64, error) {
	if err := ValidateParams(temperature, topK); err != nil {
		return nil, err
	}
	var s Sampler
	return slices.Clone(s.distribution(row, temperature, topK)), nil
}

func (s *Sampler) distribution(row []float32, temp float32, topK int) []float64 {
	n := len(row)
	if cap(s.prob) < n {
		s.prob = make([]float64, n)
	}
	prob := s.prob[:n]

	var keep []bool
	if topK > 0 && topK < n {
		keep = s.topKMask(row, topK)
	}

	// Dropped entries get no mass and take no part in the max.
	maxv := math.Inf(-1)
	for i, l := range row {
		if keep != nil && !keep[i] {
			prob[i] = math.Inf(-1)
			continue
		}
		v := float64(l) / float64(temp)
		prob[i] = v
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i, v := range prob {
		var e float64
		if !math.IsInf(v, -1) {
			e = math.Exp(v - maxv)
		}
		prob[i] = e
		sum += e
	}
	if sum > 0 {
		inv := 1 / sum
		for i := range prob {
			prob[i] *= inv
		}
	}
	return prob
}

// topKMask marks the k highest logits. Scaling by a positive temperature does
// not change the order, so raw logits are ranked. Earlier indices win ties.
func (s *Sampler) topKMask(row []float32, k int) []bool {
	if cap(s.keep) < len(row) {
		s.keep = make([]bool, len(row))
	}
	keep := s.keep[:len(row)]
	clear(keep)
	for _, i := range s.topK(row, k) {
		keep[i] = true
	}
	return keep
}

// topK returns the indices of the k largest elements, largest first.
func (s *Sampler) topK(row []float32, k int) []int {
	if k > insertionLimit {
		idx := make([]int, len(row))
		for i := range idx {
			idx[i] = i
		}
		slices.SortStableFunc(idx, func(a, b int) int {
			switch {
			case row[a] > row[b]:
				return -1
			case row[a] < row[b]:
				return 1
			}
			return 0
		})
		return idx[:k]
	}

	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float32, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, v := range row {
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)

		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx
}

// draw picks the index whose cumulative probability first exceeds r.
// Rounding can leave the total just under r; the last index with non-zero
// mass is returned then.
func draw(prob []float64, r float64) int {
	var c float64
	last := 0
	for i, p := range prob {
		if p == 0 {
			continue
		}
		c += p
		last = i
		if r < c {
			return i
		}
	}
	return last
}
