package bowgo

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hupe1980/bowgo/bow"
	"github.com/hupe1980/bowgo/descriptor"
	"github.com/hupe1980/bowgo/distance"
	"github.com/hupe1980/bowgo/internal/matcher"
	"github.com/hupe1980/bowgo/internal/retrieval"
	"github.com/hupe1980/bowgo/store"
	"github.com/hupe1980/bowgo/vocabulary"
	"golang.org/x/sync/errgroup"
)

// Retriever indexes keyframes by their bag-of-words representation and
// answers place-recognition queries against them.
//
// Mutations (AddKeyframe, AddKeyframes, SuppressKeyframe, ResetStore and
// snapshot loads) hold the store lock for their own duration. Queries do not
// lock: a query running concurrently with a mutation may observe a partially
// applied change. Callers that need strict consistency serialize queries
// against mutations, for example by holding Acquire around a sequence of
// queries. Mutations must not be called while holding Acquire.
type Retriever struct {
	voc   vocabulary.Vocabulary
	store *store.Store
	opts  options

	metrics MetricsCollector
	logger  *Logger

	comp atomic.Pointer[components]
}

// components are the level-dependent query paths. They are rebuilt when a
// snapshot with a different level is loaded.
type components struct {
	level   int
	engine  *retrieval.Engine
	matcher *matcher.Matcher
}

// ScoredKeyframe is a retrieved keyframe with its similarity score.
type ScoredKeyframe struct {
	ID    bow.KeyframeID
	Score float64
	// CommonWords is the number of level words shared with the query.
	CommonWords int
}

// Stats is a point-in-time summary of a Retriever.
type Stats struct {
	Keyframes int
	Words     int
	Postings  uint64
	Level     int
	Metric    distance.BoWMetric
}

// New creates an empty Retriever over voc.
func New(voc vocabulary.Vocabulary, optFns ...Option) (*Retriever, error) {
	if voc == nil || !voc.IsValid() {
		return nil, fmt.Errorf("%w: vocabulary is missing or empty", ErrInvalidConfiguration)
	}

	opts := applyOptions(optFns)
	if err := opts.validate(); err != nil {
		return nil, err
	}

	r := &Retriever{
		voc:     voc,
		store:   store.New(),
		opts:    opts,
		metrics: opts.metricsCollector,
		logger:  opts.logger,
	}
	r.build(opts.level)

	r.logger.Debug("retriever created",
		"level", opts.level,
		"metric", opts.metric.String(),
		"threshold", opts.threshold,
		"descriptor_type", voc.DescriptorType().String(),
		"descriptor_size", voc.DescriptorSize(),
	)
	return r, nil
}

func (r *Retriever) build(level int) {
	slogger := r.logger.Logger
	r.comp.Store(&components{
		level: level,
		engine: retrieval.New(r.voc, r.store,
			retrieval.WithLevel(level),
			retrieval.WithMetric(r.opts.metric),
			retrieval.WithThreshold(r.opts.threshold),
			retrieval.WithLogger(slogger),
		),
		matcher: matcher.New(r.voc, r.store,
			matcher.WithLevel(level),
			matcher.WithRatio(r.opts.matchRatio),
			matcher.WithMaxDistance(r.opts.matchMaxDistance),
			matcher.WithUnique(r.opts.uniqueMatches),
			matcher.WithLogger(slogger),
		),
	})
}

// Level returns the vocabulary level of the inverted index.
func (r *Retriever) Level() int {
	return r.comp.Load().level
}

// Vocabulary returns the vocabulary the Retriever was created with.
func (r *Retriever) Vocabulary() vocabulary.Vocabulary {
	return r.voc
}

// Acquire takes the store lock and returns the func that releases it.
func (r *Retriever) Acquire() (release func()) {
	return r.store.Acquire()
}

type transformed struct {
	id      bow.KeyframeID
	feature bow.Feature
	level   bow.LevelFeature
	n       int
}

// transform computes the features of kf at level. With matchedOnly set and
// a mask present, only flagged descriptors contribute; the level feature
// still indexes into the full descriptor buffer so matching can use it.
func (r *Retriever) transform(kf *descriptor.Keyframe, matchedOnly bool, level int) (*transformed, error) {
	if kf == nil || kf.Descriptors == nil || kf.Descriptors.Len() == 0 {
		return nil, ErrEmptyInput
	}
	if err := vocabulary.Check(r.voc, kf.Descriptors); err != nil {
		return nil, err
	}

	d := kf.Descriptors
	var selected []int
	if matchedOnly && kf.Matched != nil {
		selected = kf.MatchedIndices()
		if len(selected) == 0 {
			return nil, fmt.Errorf("%w: keyframe %d has no matched descriptors", ErrEmptyInput, kf.ID)
		}
		var err error
		if d, err = d.Select(selected); err != nil {
			return nil, err
		}
	}

	f, lf, err := r.voc.TransformLevel(d, level)
	if err != nil {
		return nil, err
	}
	if selected != nil {
		for _, n := range lf {
			for i, idx := range n.Indices {
				n.Indices[i] = uint32(selected[idx])
			}
		}
	}
	return &transformed{id: kf.ID, feature: f, level: lf, n: d.Len()}, nil
}

// AddKeyframe indexes kf. If useMatchedOnly is set and kf carries a matched
// mask, only the flagged descriptors are indexed. Adding an id that is
// already present fails with ErrAlreadyExists.
func (r *Retriever) AddKeyframe(ctx context.Context, kf *descriptor.Keyframe, useMatchedOnly bool) error {
	start := time.Now()

	var id bow.KeyframeID
	if kf != nil {
		id = kf.ID
	}
	n, err := r.addKeyframe(ctx, kf, useMatchedOnly)
	err = translateError(err)

	r.metrics.RecordAdd(time.Since(start), err)
	r.logger.LogAdd(ctx, id, n, err)
	return err
}

func (r *Retriever) addKeyframe(ctx context.Context, kf *descriptor.Keyframe, useMatchedOnly bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	release := r.store.Acquire()
	defer release()

	t, err := r.transform(kf, useMatchedOnly, r.Level())
	if err != nil {
		return 0, err
	}
	return t.n, r.store.Add(t.id, t.feature, t.level)
}

// AddKeyframes indexes a batch. Vocabulary transforms run in parallel,
// bounded by the resource controller; the batch is then inserted under a
// single lock acquisition. Either every keyframe is added or none is.
func (r *Retriever) AddKeyframes(ctx context.Context, kfs []*descriptor.Keyframe, useMatchedOnly bool) error {
	start := time.Now()
	err := translateError(r.addKeyframes(ctx, kfs, useMatchedOnly))

	r.metrics.RecordBatchAdd(len(kfs), time.Since(start), err)
	r.logger.LogBatchAdd(ctx, len(kfs), err)
	return err
}

func (r *Retriever) addKeyframes(ctx context.Context, kfs []*descriptor.Keyframe, useMatchedOnly bool) error {
	if len(kfs) == 0 {
		return ErrEmptyInput
	}

	level := r.Level()
	results := make([]*transformed, len(kfs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.resources.MaxWorkers())
	for i, kf := range kfs {
		g.Go(func() error {
			if err := r.opts.resources.AcquireWorker(gctx); err != nil {
				return err
			}
			defer r.opts.resources.ReleaseWorker()

			t, err := r.transform(kf, useMatchedOnly, level)
			if err != nil {
				if kf != nil {
					return fmt.Errorf("keyframe %d: %w", kf.ID, err)
				}
				return fmt.Errorf("keyframe at %d: %w", i, err)
			}
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	release := r.store.Acquire()
	defer release()

	if level != r.Level() {
		// a snapshot with another level was loaded meanwhile
		return fmt.Errorf("%w: index level changed from %d to %d during batch add",
			ErrInvalidConfiguration, level, r.Level())
	}

	ids := make([]bow.KeyframeID, len(results))
	for i, t := range results {
		if r.store.Contains(t.id) {
			return fmt.Errorf("keyframe %d: %w", t.id, store.ErrAlreadyExists)
		}
		ids[i] = t.id
	}
	slices.Sort(ids)
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			return fmt.Errorf("keyframe %d twice in batch: %w", ids[i], store.ErrAlreadyExists)
		}
	}

	for _, t := range results {
		if err := r.store.Add(t.id, t.feature, t.level); err != nil {
			for _, done := range results {
				if done == t {
					break
				}
				_ = r.store.Remove(done.id)
			}
			return fmt.Errorf("keyframe %d: %w", t.id, err)
		}
	}
	return nil
}

// SuppressKeyframe removes a keyframe and all its postings. Unknown ids
// fail with ErrNotFound.
func (r *Retriever) SuppressKeyframe(ctx context.Context, id bow.KeyframeID) error {
	start := time.Now()
	err := translateError(r.suppress(ctx, id))

	r.metrics.RecordRemove(time.Since(start), err)
	r.logger.LogRemove(ctx, id, err)
	return err
}

func (r *Retriever) suppress(ctx context.Context, id bow.KeyframeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	release := r.store.Acquire()
	defer release()

	return r.store.Remove(id)
}

// Retrieve returns the stored keyframes most similar to frame, best first.
// Candidates must share more than half as many level words with the query
// as the best candidate does, and score strictly above the threshold.
func (r *Retriever) Retrieve(ctx context.Context, frame *descriptor.Frame) ([]bow.KeyframeID, error) {
	res, err := r.retrieve(ctx, frame, func(e *retrieval.Engine, q *descriptor.Buffer) ([]retrieval.Result, error) {
		return e.Retrieve(q)
	})
	return retrieval.IDs(res), err
}

// RetrieveCandidates ranks only the given keyframes against frame. Ids that
// are not stored are ignored.
func (r *Retriever) RetrieveCandidates(ctx context.Context, frame *descriptor.Frame, candidates []bow.KeyframeID) ([]bow.KeyframeID, error) {
	res, err := r.retrieve(ctx, frame, func(e *retrieval.Engine, q *descriptor.Buffer) ([]retrieval.Result, error) {
		return e.RetrieveCandidates(q, candidates)
	})
	return retrieval.IDs(res), err
}

// RetrieveScored is Retrieve with scores and shared word counts.
func (r *Retriever) RetrieveScored(ctx context.Context, frame *descriptor.Frame) ([]ScoredKeyframe, error) {
	res, err := r.retrieve(ctx, frame, func(e *retrieval.Engine, q *descriptor.Buffer) ([]retrieval.Result, error) {
		return e.Retrieve(q)
	})
	if err != nil {
		return nil, err
	}
	out := make([]ScoredKeyframe, len(res))
	for i, x := range res {
		out[i] = ScoredKeyframe{ID: x.ID, Score: x.Score, CommonWords: x.CommonWords}
	}
	return out, nil
}

func (r *Retriever) retrieve(
	ctx context.Context,
	frame *descriptor.Frame,
	run func(*retrieval.Engine, *descriptor.Buffer) ([]retrieval.Result, error),
) ([]retrieval.Result, error) {
	start := time.Now()

	n := 0
	res, err := func() ([]retrieval.Result, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if frame == nil || frame.Descriptors == nil || frame.Descriptors.Len() == 0 {
			return nil, ErrEmptyInput
		}
		n = frame.Descriptors.Len()
		if err := vocabulary.Check(r.voc, frame.Descriptors); err != nil {
			return nil, err
		}
		return run(r.comp.Load().engine, frame.Descriptors)
	}()
	err = translateError(err)

	r.metrics.RecordRetrieve(len(res), time.Since(start), err)
	r.logger.LogRetrieve(ctx, n, len(res), err)
	return res, err
}

// Match finds correspondences between the descriptors of frame and those of
// the stored keyframe kf.
func (r *Retriever) Match(ctx context.Context, frame *descriptor.Frame, kf *descriptor.Keyframe) ([]bow.Match, error) {
	var q *descriptor.Buffer
	if frame != nil {
		q = frame.Descriptors
	}
	return r.match(ctx, kf, func(m *matcher.Matcher) ([]bow.Match, error) {
		return m.Match(q, kf)
	})
}

// MatchSelected matches only the descriptors at indices. Indices outside
// descriptors are skipped.
func (r *Retriever) MatchSelected(ctx context.Context, indices []int, descriptors *descriptor.Buffer, kf *descriptor.Keyframe) ([]bow.Match, error) {
	return r.match(ctx, kf, func(m *matcher.Matcher) ([]bow.Match, error) {
		return m.MatchSelected(indices, descriptors, kf)
	})
}

func (r *Retriever) match(ctx context.Context, kf *descriptor.Keyframe, run func(*matcher.Matcher) ([]bow.Match, error)) ([]bow.Match, error) {
	start := time.Now()

	var id bow.KeyframeID
	if kf != nil {
		id = kf.ID
	}
	matches, err := func() ([]bow.Match, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return run(r.comp.Load().matcher)
	}()
	err = translateError(err)

	r.metrics.RecordMatch(len(matches), time.Since(start), err)
	r.logger.LogMatch(ctx, id, len(matches), err)
	return matches, err
}

// ResetStore removes every keyframe.
func (r *Retriever) ResetStore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	release := r.store.Acquire()
	defer release()

	r.store.Reset()
	r.logger.InfoContext(ctx, "store reset")
	return nil
}

// Stats returns a summary of the indexed keyframes.
func (r *Retriever) Stats() Stats {
	st := r.store.Stats()
	c := r.comp.Load()
	return Stats{
		Keyframes: st.Keyframes,
		Words:     st.Words,
		Postings:  st.Postings,
		Level:     c.level,
		Metric:    c.engine.Metric(),
	}
}
