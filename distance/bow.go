package distance

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/bowgo/bow"
)

// BoWMetric selects how two bag-of-words histograms are compared.
// The numeric values are the metric ids accepted in configuration.
type BoWMetric int

const (
	// BoWL1 is 1 - ||a-b||_1/2. Assumes L1-normalized weights.
	BoWL1 BoWMetric = iota
	// BoWL2 is the Nister score 1 - sqrt(1 - a.b). Assumes L2-normalized weights.
	BoWL2
	// BoWChiSquare is 2 * sum(a_i*b_i/(a_i+b_i)).
	BoWChiSquare
	// BoWKL is sum(a_i*log(a_i/b_i)) with words missing from b charged
	// a_i*(log(a_i) - log(eps)). It is not symmetric: Score(a, b) != Score(b, a)
	// in general, and larger values mean less similar.
	BoWKL
	// BoWBhattacharyya is sum(sqrt(a_i*b_i)).
	BoWBhattacharyya
	// BoWDotProduct is sum(a_i*b_i), unnormalized.
	BoWDotProduct
)

// DefaultBoWMetric is used when a configured metric id is unknown.
const DefaultBoWMetric = BoWL2

// ErrUnknownBoWMetric is returned for metric ids outside the defined set.
var ErrUnknownBoWMetric = errors.New("unknown bag-of-words metric")

func (m BoWMetric) String() string {
	switch m {
	case BoWL1:
		return "L1"
	case BoWL2:
		return "L2"
	case BoWChiSquare:
		return "ChiSquare"
	case BoWKL:
		return "KL"
	case BoWBhattacharyya:
		return "Bhattacharyya"
	case BoWDotProduct:
		return "DotProduct"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Valid reports whether m is one of the defined metrics.
func (m BoWMetric) Valid() bool {
	return m >= BoWL1 && m <= BoWDotProduct
}

// Bounded reports whether scores of m lie in [0,1] with 1 meaning identical.
func (m BoWMetric) Bounded() bool {
	switch m {
	case BoWL1, BoWL2, BoWChiSquare, BoWBhattacharyya:
		return true
	}
	return false
}

// BoWFunc scores two histograms.
type BoWFunc func(a, b bow.Feature) float64

// logEps is log(machine epsilon for float64), the floor KL charges for words
// absent from the second histogram.
var logEps = math.Log(math.Nextafter(1, 2) - 1)

// accumulator is the per-metric part of the merge scan.
type accumulator struct {
	// both is called for every word present in a and b.
	both func(acc, w1, w2 float64) float64
	// onlyA is called for every word present in a only; nil means no contribution.
	onlyA func(acc, w1 float64) float64
	// final maps the accumulated sum to the score.
	final func(acc float64) float64
}

var accumulators = [...]accumulator{
	BoWL1: {
		both: func(acc, w1, w2 float64) float64 {
			return acc + math.Abs(w1-w2) - math.Abs(w1) - math.Abs(w2)
		},
		final: func(acc float64) float64 { return -acc / 2 },
	},
	BoWL2: {
		both: func(acc, w1, w2 float64) float64 { return acc + w1*w2 },
		final: func(acc float64) float64 {
			// ||a - b||_2 = sqrt(2 - 2 a.b) for unit vectors (Nister, 2006).
			if acc >= 1 {
				return 1
			}
			s := 1 - math.Sqrt(math.Max(0, 1-acc))
			return math.Min(1, math.Max(0, s))
		},
	},
	BoWChiSquare: {
		both: func(acc, w1, w2 float64) float64 {
			if s := w1 + w2; s != 0 {
				return acc + w1*w2/s
			}
			return acc
		},
		final: func(acc float64) float64 { return 2 * acc },
	},
	BoWKL: {
		both: func(acc, w1, w2 float64) float64 {
			if w1 != 0 && w2 != 0 {
				return acc + w1*math.Log(w1/w2)
			}
			return acc
		},
		onlyA: func(acc, w1 float64) float64 {
			if w1 != 0 {
				return acc + w1*(math.Log(w1)-logEps)
			}
			return acc
		},
		final: func(acc float64) float64 { return acc },
	},
	BoWBhattacharyya: {
		both:  func(acc, w1, w2 float64) float64 { return acc + math.Sqrt(w1*w2) },
		final: func(acc float64) float64 { return acc },
	},
	BoWDotProduct: {
		both:  func(acc, w1, w2 float64) float64 { return acc + w1*w2 },
		final: func(acc float64) float64 { return acc },
	},
}

// mergeScan walks a and b in word order and feeds acc.
// Runs of non-matching words are skipped with Feature.Seek unless the metric
// needs to see words that only a holds.
func mergeScan(a, b bow.Feature, acc accumulator) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		wa, wb := a[i].Word, b[j].Word
		switch {
		case wa == wb:
			sum = acc.both(sum, a[i].Weight, b[j].Weight)
			i++
			j++
		case wa < wb:
			next := a.Seek(i, wb)
			if acc.onlyA != nil {
				for ; i < next; i++ {
					sum = acc.onlyA(sum, a[i].Weight)
				}
			}
			i = next
		default:
			j = b.Seek(j, wa)
		}
	}
	if acc.onlyA != nil {
		for ; i < len(a); i++ {
			sum = acc.onlyA(sum, a[i].Weight)
		}
	}
	return acc.final(sum)
}

// BoWProvider returns the scoring function for m.
func BoWProvider(m BoWMetric) (BoWFunc, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownBoWMetric, m)
	}
	acc := accumulators[m]
	return func(a, b bow.Feature) float64 {
		return mergeScan(a, b, acc)
	}, nil
}

// Score compares a against b under m.
func Score(a, b bow.Feature, m BoWMetric) (float64, error) {
	if !m.Valid() {
		return 0, fmt.Errorf("%w: %v", ErrUnknownBoWMetric, m)
	}
	return mergeScan(a, b, accumulators[m]), nil
}
