package distance

import (
	"math"
	"testing"

	"github.com/hupe1980/bowgo/bow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 27},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"Mixed", []float32{1, -1}, []float32{-1, 1}, 8},
		{"Empty", []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SquaredL2(tt.a, tt.b), 1e-5)
		})
	}
}

func TestL2(t *testing.T) {
	assert.InDelta(t, 5, L2([]float32{0, 0}, []float32{3, 4}), 1e-6)
	assert.InDelta(t, 0, L2([]float32{7, 7}, []float32{7, 7}), 1e-6)
}

func l1(m map[bow.WordID]float64) bow.Feature {
	f := bow.NewFeature(m)
	f.NormalizeL1()
	return f
}

func l2(m map[bow.WordID]float64) bow.Feature {
	f := bow.NewFeature(m)
	f.NormalizeL2()
	return f
}

func TestScoreSelfSimilarity(t *testing.T) {
	raw := map[bow.WordID]float64{1: 0.3, 7: 1.2, 40: 0.5, 1000: 2}

	tests := []struct {
		metric BoWMetric
		f      bow.Feature
		want   float64
	}{
		{BoWL1, l1(raw), 1},
		{BoWL2, l2(raw), 1},
		{BoWChiSquare, l1(raw), 1},
		{BoWBhattacharyya, l1(raw), 1},
		{BoWKL, l1(raw), 0},
	}

	for _, tt := range tests {
		t.Run(tt.metric.String(), func(t *testing.T) {
			got, err := Score(tt.f, tt.f, tt.metric)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	t.Run("DotProduct", func(t *testing.T) {
		f := bow.NewFeature(raw)
		var want float64
		for _, e := range f {
			want += e.Weight * e.Weight
		}
		got, err := Score(f, f, BoWDotProduct)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-9)
	})
}

func TestScoreDisjoint(t *testing.T) {
	a := l1(map[bow.WordID]float64{1: 1, 3: 1, 5: 1})
	b := l1(map[bow.WordID]float64{2: 1, 4: 1, 6000: 1})

	for _, m := range []BoWMetric{BoWL1, BoWL2, BoWChiSquare, BoWBhattacharyya, BoWDotProduct} {
		t.Run(m.String(), func(t *testing.T) {
			got, err := Score(a, b, m)
			require.NoError(t, err)
			assert.InDelta(t, 0, got, 1e-12)
		})
	}

	t.Run("KL", func(t *testing.T) {
		got, err := Score(a, b, BoWKL)
		require.NoError(t, err)
		// every word of a is charged against the epsilon floor
		var want float64
		for _, e := range a {
			want += e.Weight * (math.Log(e.Weight) - logEps)
		}
		assert.InDelta(t, want, got, 1e-9)
		assert.Greater(t, got, 0.0)
	})
}

func TestScoreKnownValues(t *testing.T) {
	a := bow.Feature{{Word: 1, Weight: 0.5}, {Word: 2, Weight: 0.5}}
	b := bow.Feature{{Word: 2, Weight: 0.5}, {Word: 3, Weight: 0.5}}

	tests := []struct {
		metric BoWMetric
		want   float64
	}{
		// overlap on word 2 only: |0.5-0.5| - 0.5 - 0.5 = -1
		{BoWL1, 0.5},
		// a.b = 0.25
		{BoWL2, 1 - math.Sqrt(0.75)},
		// 2 * 0.25/1
		{BoWChiSquare, 0.5},
		{BoWBhattacharyya, 0.5},
		{BoWDotProduct, 0.25},
		// word 2 contributes 0; word 1 only in a
		{BoWKL, 0.5 * (math.Log(0.5) - logEps)},
	}

	for _, tt := range tests {
		t.Run(tt.metric.String(), func(t *testing.T) {
			got, err := Score(a, b, tt.metric)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScoreSymmetry(t *testing.T) {
	a := l1(map[bow.WordID]float64{1: 4, 2: 1, 9: 2, 77: 1})
	b := l1(map[bow.WordID]float64{2: 3, 9: 1, 12: 5})

	for _, m := range []BoWMetric{BoWL1, BoWL2, BoWChiSquare, BoWBhattacharyya, BoWDotProduct} {
		ab, err := Score(a, b, m)
		require.NoError(t, err)
		ba, err := Score(b, a, m)
		require.NoError(t, err)
		assert.InDelta(t, ab, ba, 1e-12, m.String())
	}

	// KL charges words missing from the second histogram, so the direction matters.
	ab, err := Score(a, b, BoWKL)
	require.NoError(t, err)
	ba, err := Score(b, a, BoWKL)
	require.NoError(t, err)
	assert.NotEqual(t, ab, ba)
}

func TestScoreBoundedRange(t *testing.T) {
	a := bow.NewFeature(map[bow.WordID]float64{1: 4, 2: 1, 9: 2, 77: 1})
	b := bow.NewFeature(map[bow.WordID]float64{2: 3, 9: 1, 12: 5, 77: 2})

	for _, m := range []BoWMetric{BoWL1, BoWL2, BoWChiSquare, BoWBhattacharyya} {
		require.True(t, m.Bounded())
		x, y := a.Clone(), b.Clone()
		if m == BoWL2 {
			x.NormalizeL2()
			y.NormalizeL2()
		} else {
			x.NormalizeL1()
			y.NormalizeL1()
		}
		got, err := Score(x, y, m)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, 0.0, m.String())
		assert.LessOrEqual(t, got, 1.0, m.String())
	}
	assert.False(t, BoWKL.Bounded())
	assert.False(t, BoWDotProduct.Bounded())
}

func TestScoreL2Clamp(t *testing.T) {
	// weights not normalized: the accumulated product exceeds 1
	a := bow.Feature{{Word: 1, Weight: 2}}
	got, err := Score(a, a, BoWL2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestScoreSparseGaps(t *testing.T) {
	// long runs of non-shared words on both sides exercise the seek path
	am := map[bow.WordID]float64{}
	bm := map[bow.WordID]float64{}
	for i := 0; i < 500; i++ {
		am[bow.WordID(i*3)] = 1
		bm[bow.WordID(100000+i)] = 1
	}
	am[200000] = 1
	bm[200000] = 1

	a, b := l2(am), l2(bm)
	got, err := Score(a, b, BoWDotProduct)
	require.NoError(t, err)
	wa, _ := a.Get(200000)
	wb, _ := b.Get(200000)
	assert.InDelta(t, wa*wb, got, 1e-12)
}

func TestScoreEmpty(t *testing.T) {
	a := l1(map[bow.WordID]float64{1: 1})
	for _, m := range []BoWMetric{BoWL1, BoWL2, BoWChiSquare, BoWBhattacharyya, BoWDotProduct, BoWKL} {
		got, err := Score(nil, a, m)
		require.NoError(t, err)
		assert.InDelta(t, 0, got, 1e-12, m.String())
	}
}

func TestUnknownMetric(t *testing.T) {
	_, err := Score(nil, nil, BoWMetric(42))
	assert.ErrorIs(t, err, ErrUnknownBoWMetric)

	_, err = BoWProvider(BoWMetric(-1))
	assert.ErrorIs(t, err, ErrUnknownBoWMetric)

	assert.Equal(t, "Unknown(42)", BoWMetric(42).String())
	assert.Equal(t, BoWL2, DefaultBoWMetric)
}

func TestBoWProvider(t *testing.T) {
	a := l2(map[bow.WordID]float64{1: 1, 2: 1})
	b := l2(map[bow.WordID]float64{2: 1, 3: 1})

	fn, err := BoWProvider(BoWL2)
	require.NoError(t, err)
	want, err := Score(a, b, BoWL2)
	require.NoError(t, err)
	assert.Equal(t, want, fn(a, b))
}
