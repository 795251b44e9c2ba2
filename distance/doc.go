// Package distance provides descriptor distances and bag-of-words similarity
// scores.
//
// # Descriptor distances
//
//	d2 := distance.SquaredL2(a, b)
//	d := distance.L2(a, b)
//
// # Bag-of-words metrics
//
//   - BoWL1: 1 - ||a-b||_1 / 2 on L1-normalized histograms, in [0,1]
//   - BoWL2: Nister score 1 - sqrt(1 - a.b) on L2-normalized histograms (default), in [0,1]
//   - BoWChiSquare: 2 * sum(a_i b_i / (a_i + b_i)), in [0,1]
//   - BoWKL: KL divergence of a from b with an epsilon floor, unbounded and asymmetric
//   - BoWBhattacharyya: sum(sqrt(a_i b_i)), in [0,1]
//   - BoWDotProduct: sum(a_i b_i), unnormalized
//
// Every metric shares one merge scan over the two sorted histograms; only the
// per-word accumulation and the final transform differ.
//
//	s, err := distance.Score(candidate, query, distance.BoWL2)
package distance
