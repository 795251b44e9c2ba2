package retrieval

import (
	"bytes"
	"log/slog"
	"math"
	"testing"

	"github.com/hupe1980/bowgo/bow"
	"github.com/hupe1980/bowgo/descriptor"
	"github.com/hupe1980/bowgo/distance"
	"github.com/hupe1980/bowgo/store"
	"github.com/hupe1980/bowgo/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leafLevel = 2

type fixture struct {
	voc   *testutil.Vocab
	store *store.Store
	rng   *testutil.RNG
}

func newFixture() *fixture {
	return &fixture{
		voc:   testutil.NewVocab(16, 4, 2),
		store: store.New(),
		rng:   testutil.NewRNG(4711),
	}
}

func (fx *fixture) sample(leaves ...int) *descriptor.Buffer {
	return testutil.Buffer(fx.rng.Near(fx.voc.LeafCentroids(leaves...), 0.01))
}

func (fx *fixture) add(t *testing.T, id bow.KeyframeID, level int, leaves ...int) {
	t.Helper()
	f, lf, err := fx.voc.TransformLevel(fx.sample(leaves...), level)
	require.NoError(t, err)
	require.NoError(t, fx.store.Add(id, f, lf))
}

func TestRetrieveRanksNearDuplicateFirst(t *testing.T) {
	fx := newFixture()
	fx.add(t, 1, leafLevel, 0, 1, 2, 3, 4)
	fx.add(t, 2, leafLevel, 3, 4, 5, 6, 7)
	fx.add(t, 3, leafLevel, 5, 6, 7, 8, 9)

	e := New(fx.voc, fx.store, WithLevel(leafLevel), WithThreshold(0.01))

	res, err := e.Retrieve(fx.sample(5, 6, 7, 8, 9))
	require.NoError(t, err)

	// keyframe 1 shares no word; 2 shares 3 of 5, above half of 3's 5
	assert.Equal(t, []bow.KeyframeID{3, 2}, IDs(res))
	assert.Equal(t, 5, res[0].CommonWords)
	assert.Equal(t, 3, res[1].CommonWords)
	assert.InDelta(t, 1.0, res[0].Score, 1e-4)
	assert.InDelta(t, 1-math.Sqrt(1-3.0/5), res[1].Score, 1e-9)
	assert.Greater(t, res[0].Score, res[1].Score)
}

func TestRetrieveHalfOfMaxIsStrict(t *testing.T) {
	fx := newFixture()
	fx.add(t, 1, leafLevel, 0, 1, 2, 3)
	fx.add(t, 2, leafLevel, 0, 1, 10, 11)

	e := New(fx.voc, fx.store, WithLevel(leafLevel))

	// keyframe 2 shares exactly half of keyframe 1's four words
	res, err := e.Retrieve(fx.sample(0, 1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []bow.KeyframeID{1}, IDs(res))
}

func TestRetrieveNoCandidates(t *testing.T) {
	fx := newFixture()
	fx.add(t, 1, leafLevel, 0, 1, 2)
	fx.add(t, 2, leafLevel, 3, 4, 5)

	e := New(fx.voc, fx.store, WithLevel(leafLevel))
	_, err := e.Retrieve(fx.sample(13, 14, 15))
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestRetrieveEmptyStore(t *testing.T) {
	fx := newFixture()
	e := New(fx.voc, fx.store, WithLevel(leafLevel))
	_, err := e.Retrieve(fx.sample(1))
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestRetrieveNoneAboveThreshold(t *testing.T) {
	fx := newFixture()
	fx.add(t, 1, leafLevel, 0, 1, 2)

	// the Nister score never exceeds 1
	e := New(fx.voc, fx.store, WithLevel(leafLevel), WithThreshold(1))
	_, err := e.Retrieve(fx.sample(0, 1, 2))
	assert.ErrorIs(t, err, ErrNoneAboveThreshold)
}

func TestRetrieveEmptyQuery(t *testing.T) {
	fx := newFixture()
	e := New(fx.voc, fx.store)

	empty, err := descriptor.NewBuffer(descriptor.TypeFloat32, 16, nil)
	require.NoError(t, err)

	_, err = e.Retrieve(empty)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = e.RetrieveCandidates(nil, []bow.KeyframeID{1})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRetrieveTiesByAscendingID(t *testing.T) {
	fx := newFixture()
	for _, id := range []bow.KeyframeID{9, 4, 6} {
		fx.add(t, id, leafLevel, 0, 1, 2)
	}

	e := New(fx.voc, fx.store, WithLevel(leafLevel))
	res, err := e.Retrieve(fx.sample(0, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, []bow.KeyframeID{4, 6, 9}, IDs(res))
	assert.Equal(t, res[0].Score, res[2].Score)
}

func TestRetrieveCoarseLevel(t *testing.T) {
	fx := newFixture()
	// level 1 groups leaves by fours: 0-3, 4-7, 8-11, 12-15
	fx.add(t, 1, 1, 0, 1, 4, 5)
	fx.add(t, 2, 1, 2, 3, 8, 9)
	fx.add(t, 3, 1, 6, 7, 10, 11, 12)

	e := New(fx.voc, fx.store, WithLevel(1))
	res, err := e.Retrieve(fx.sample(6, 7, 10, 11, 12))
	require.NoError(t, err)
	assert.Equal(t, bow.KeyframeID(3), res[0].ID)
	assert.Equal(t, 3, res[0].CommonWords)
}

func TestRetrieveCandidates(t *testing.T) {
	fx := newFixture()
	fx.add(t, 1, leafLevel, 0, 1, 2, 3, 4)
	fx.add(t, 2, leafLevel, 3, 4, 5, 6, 7)
	fx.add(t, 3, leafLevel, 5, 6, 7, 8, 9)

	e := New(fx.voc, fx.store, WithLevel(leafLevel), WithThreshold(0.01))
	q := fx.sample(5, 6, 7, 8, 9)

	t.Run("Subset", func(t *testing.T) {
		res, err := e.RetrieveCandidates(q, []bow.KeyframeID{2, 99, 2})
		require.NoError(t, err)
		assert.Equal(t, []bow.KeyframeID{2}, IDs(res))
		assert.Zero(t, res[0].CommonWords)
	})

	t.Run("Disjoint", func(t *testing.T) {
		_, err := e.RetrieveCandidates(q, []bow.KeyframeID{1})
		assert.ErrorIs(t, err, ErrNoneAboveThreshold)
	})

	t.Run("UnknownIDs", func(t *testing.T) {
		_, err := e.RetrieveCandidates(q, []bow.KeyframeID{99})
		assert.ErrorIs(t, err, ErrNoCandidates)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := e.RetrieveCandidates(q, nil)
		assert.ErrorIs(t, err, ErrNoCandidates)
	})

	t.Run("AllMatchesUnrestricted", func(t *testing.T) {
		full, err := e.Retrieve(q)
		require.NoError(t, err)
		restricted, err := e.RetrieveCandidates(q, []bow.KeyframeID{3, 2})
		require.NoError(t, err)
		assert.Equal(t, IDs(full), IDs(restricted))
	})
}

func TestUnknownMetricFallsBack(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	fx := newFixture()
	fx.add(t, 1, leafLevel, 0, 1, 2)

	e := New(fx.voc, fx.store, WithLevel(leafLevel), WithMetric(distance.BoWMetric(42)), WithLogger(logger))
	assert.Equal(t, distance.BoWL2, e.Metric())
	assert.Contains(t, logs.String(), "unknown similarity metric")

	res, err := e.Retrieve(fx.sample(0, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, []bow.KeyframeID{1}, IDs(res))
}

func TestRetrieveWithEveryMetric(t *testing.T) {
	for _, m := range []distance.BoWMetric{
		distance.BoWL1, distance.BoWL2, distance.BoWChiSquare,
		distance.BoWBhattacharyya, distance.BoWDotProduct,
	} {
		t.Run(m.String(), func(t *testing.T) {
			fx := newFixture()
			fx.add(t, 1, leafLevel, 0, 1, 2, 3)
			fx.add(t, 2, leafLevel, 1, 2, 3, 4)

			e := New(fx.voc, fx.store, WithLevel(leafLevel), WithMetric(m), WithThreshold(0))
			res, err := e.Retrieve(fx.sample(0, 1, 2, 3))
			require.NoError(t, err)
			assert.Equal(t, bow.KeyframeID(1), res[0].ID)
		})
	}
}
