// Package retrieval ranks stored keyframes against a query.
//
// Unrestricted queries generate candidates from the inverted index: every
// keyframe sharing a level word with the query is counted, and only those
// with more than half the best count are scored. Restricted queries score a
// caller-supplied candidate set instead. Survivors must score strictly above
// the threshold and are ranked by descending score, ties by ascending id.
package retrieval

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/hupe1980/bowgo/bow"
	"github.com/hupe1980/bowgo/descriptor"
	"github.com/hupe1980/bowgo/distance"
	"github.com/hupe1980/bowgo/store"
	"github.com/hupe1980/bowgo/vocabulary"
)

var (
	// ErrEmptyQuery is returned for queries without descriptors.
	ErrEmptyQuery = errors.New("retrieval: query has no descriptors")

	// ErrNoCandidates is returned when no keyframe qualifies for scoring.
	ErrNoCandidates = errors.New("retrieval: no candidates")

	// ErrNoneAboveThreshold is returned when every candidate scores at or
	// below the threshold.
	ErrNoneAboveThreshold = errors.New("retrieval: no candidate above threshold")
)

// Result is a scored keyframe.
type Result struct {
	ID    bow.KeyframeID
	Score float64
	// CommonWords is the number of level words shared with the query.
	// It is zero for restricted queries.
	CommonWords int
}

// Engine runs retrieval queries against a store.
type Engine struct {
	voc       vocabulary.Vocabulary
	store     *store.Store
	metric    distance.BoWMetric
	score     distance.BoWFunc
	threshold float64
	level     int
	logger    *slog.Logger
}

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithMetric selects the similarity metric. Unknown metrics fall back to
// distance.DefaultBoWMetric with a warning.
func WithMetric(m distance.BoWMetric) Option {
	return func(e *Engine) {
		e.metric = m
	}
}

// WithThreshold sets the minimum score, exclusive.
func WithThreshold(t float64) Option {
	return func(e *Engine) {
		e.threshold = t
	}
}

// WithLevel sets the vocabulary level used for candidate generation.
func WithLevel(level int) Option {
	return func(e *Engine) {
		e.level = level
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine over voc and s.
func New(voc vocabulary.Vocabulary, s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		voc:    voc,
		store:  s,
		metric: distance.DefaultBoWMetric,
		level:  1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	fn, err := distance.BoWProvider(e.metric)
	if err != nil {
		e.logger.Warn("unknown similarity metric, falling back",
			"metric", int(e.metric), "fallback", distance.DefaultBoWMetric.String())
		e.metric = distance.DefaultBoWMetric
		fn, _ = distance.BoWProvider(e.metric)
	}
	e.score = fn
	return e
}

// Metric returns the metric in effect.
func (e *Engine) Metric() distance.BoWMetric { return e.metric }

// Level returns the level used for candidate generation.
func (e *Engine) Level() int { return e.level }

// Retrieve ranks every stored keyframe that shares enough level words with q.
func (e *Engine) Retrieve(q *descriptor.Buffer) ([]Result, error) {
	if q.Len() == 0 {
		return nil, ErrEmptyQuery
	}
	f, lf, err := e.voc.TransformLevel(q, e.level)
	if err != nil {
		return nil, fmt.Errorf("retrieval: transform: %w", err)
	}

	counts := e.commonWords(lf)
	if len(counts) == 0 {
		return nil, ErrNoCandidates
	}

	maxCount := 0
	for _, c := range counts {
		maxCount = max(maxCount, c)
	}
	minCount := 0.5 * float64(maxCount)

	candidates := make([]Result, 0, len(counts))
	for id, c := range counts {
		if float64(c) > minCount {
			candidates = append(candidates, Result{ID: id, CommonWords: c})
		}
	}
	slices.SortFunc(candidates, func(a, b Result) int { return cmp.Compare(a.ID, b.ID) })

	e.logger.Debug("candidates", "shared", len(counts), "kept", len(candidates), "max_common", maxCount)
	return e.rank(f, candidates)
}

// RetrieveCandidates ranks the given keyframes. Ids not in the store are
// ignored; if none remain the result is ErrNoCandidates.
func (e *Engine) RetrieveCandidates(q *descriptor.Buffer, ids []bow.KeyframeID) ([]Result, error) {
	if q.Len() == 0 {
		return nil, ErrEmptyQuery
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	candidates := make([]Result, 0, len(sorted))
	for _, id := range sorted {
		if e.store.Contains(id) {
			candidates = append(candidates, Result{ID: id})
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	f, err := e.voc.Transform(q)
	if err != nil {
		return nil, fmt.Errorf("retrieval: transform: %w", err)
	}
	return e.rank(f, candidates)
}

// commonWords counts, per keyframe, the query level words it shares.
func (e *Engine) commonWords(lf bow.LevelFeature) map[bow.KeyframeID]int {
	counts := make(map[bow.KeyframeID]int)
	for _, n := range lf {
		p, err := e.store.Postings(n.Word)
		if err != nil {
			continue
		}
		for id := range p.All() {
			counts[id]++
		}
	}
	return counts
}

// rank scores candidates, which must be in ascending id order, against f.
func (e *Engine) rank(f bow.Feature, candidates []Result) ([]Result, error) {
	out := candidates[:0]
	for _, c := range candidates {
		kf, err := e.store.Feature(c.ID)
		if err != nil {
			// removed since the postings were read
			continue
		}
		c.Score = e.score(kf, f)
		if c.Score > e.threshold {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoneAboveThreshold
	}
	slices.SortStableFunc(out, func(a, b Result) int { return cmp.Compare(b.Score, a.Score) })
	return out, nil
}

// IDs returns the keyframe ids of results in rank order.
func IDs(results []Result) []bow.KeyframeID {
	out := make([]bow.KeyframeID, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
