// Package matcher finds descriptor correspondences between a query and a
// stored keyframe, pruned by the keyframe's level feature.
//
// Each query descriptor is assigned its word at the configured level; only
// keyframe descriptors filed under the same word are compared. The nearest
// candidate is accepted unless it fails the ratio test against the second
// nearest or exceeds the maximum distance.
package matcher

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/hupe1980/bowgo/bow"
	"github.com/hupe1980/bowgo/descriptor"
	"github.com/hupe1980/bowgo/distance"
	"github.com/hupe1980/bowgo/store"
	"github.com/hupe1980/bowgo/vocabulary"
)

var (
	// ErrEmptyQuery is returned for queries without descriptors.
	ErrEmptyQuery = errors.New("matcher: query has no descriptors")

	// ErrNoDescriptors is returned when the keyframe carries no descriptors.
	ErrNoDescriptors = errors.New("matcher: keyframe has no descriptors")
)

// Matcher matches query descriptors against stored keyframes.
type Matcher struct {
	voc         vocabulary.Vocabulary
	store       *store.Store
	level       int
	ratio       float32
	maxDistance float32
	unique      bool
	logger      *slog.Logger
}

// Option defines a configuration option for the Matcher.
type Option func(*Matcher)

// WithLevel sets the vocabulary level used to prune candidates.
func WithLevel(level int) Option {
	return func(m *Matcher) {
		m.level = level
	}
}

// WithRatio sets the nearest/second-nearest ratio. A match is rejected when
// best > ratio*secondBest. A nearest tied with the second never matches.
func WithRatio(r float32) Option {
	return func(m *Matcher) {
		m.ratio = r
	}
}

// WithMaxDistance rejects matches farther than d.
func WithMaxDistance(d float32) Option {
	return func(m *Matcher) {
		m.maxDistance = d
	}
}

// WithUnique makes each keyframe descriptor match at most one query
// descriptor, first come first served.
func WithUnique(unique bool) Option {
	return func(m *Matcher) {
		m.unique = unique
	}
}

// WithLogger sets the logger for the matcher.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) {
		m.logger = l
	}
}

// New creates a matcher over voc and s.
func New(voc vocabulary.Vocabulary, s *store.Store, opts ...Option) *Matcher {
	m := &Matcher{
		voc:         voc,
		store:       s,
		level:       1,
		ratio:       0.7,
		maxDistance: math.MaxFloat32,
		unique:      true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m
}

// Match matches every descriptor of q against kf.
func (m *Matcher) Match(q *descriptor.Buffer, kf *descriptor.Keyframe) ([]bow.Match, error) {
	n := q.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return m.match(indices, q, kf)
}

// MatchSelected matches the descriptors of q at indices against kf.
// Indices outside q are skipped.
func (m *Matcher) MatchSelected(indices []int, q *descriptor.Buffer, kf *descriptor.Keyframe) ([]bow.Match, error) {
	return m.match(indices, q, kf)
}

func (m *Matcher) match(indices []int, q *descriptor.Buffer, kf *descriptor.Keyframe) ([]bow.Match, error) {
	if q.Len() == 0 {
		return nil, ErrEmptyQuery
	}
	if kf == nil || kf.Descriptors.Len() == 0 {
		return nil, ErrNoDescriptors
	}
	lf, err := m.store.LevelFeature(kf.ID)
	if err != nil {
		return nil, err
	}
	if err := vocabulary.Check(m.voc, q); err != nil {
		return nil, err
	}
	if err := vocabulary.Check(m.voc, kf.Descriptors); err != nil {
		return nil, err
	}

	var used map[uint32]struct{}
	if m.unique {
		used = make(map[uint32]struct{})
	}

	matches := make([]bow.Match, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= q.Len() {
			m.logger.Debug("skipping out of range query index", "index", i, "len", q.Len())
			continue
		}
		desc := q.Row(i)
		w, err := m.voc.WordAt(desc, m.level)
		if err != nil {
			return nil, fmt.Errorf("matcher: word of descriptor %d: %w", i, err)
		}
		target, dist, ok := m.findBestMatch(desc, lf.Lookup(w), kf.Descriptors)
		if !ok {
			continue
		}
		if used != nil {
			if _, taken := used[target]; taken {
				continue
			}
			used[target] = struct{}{}
		}
		matches = append(matches, bow.Match{QueryIndex: uint32(i), TargetIndex: target, Distance: dist})
	}

	m.logger.Debug("matched", "keyframe", kf.ID, "queried", len(indices), "matches", len(matches))
	return matches, nil
}

// findBestMatch returns the candidate nearest to desc, or false when there
// are no candidates, the nearest is tied, or it fails the ratio or distance
// test.
func (m *Matcher) findBestMatch(desc []float32, candidates []uint32, target *descriptor.Buffer) (uint32, float32, bool) {
	best, second := float32(math.MaxFloat32), float32(math.MaxFloat32)
	bestIdx := -1
	for _, c := range candidates {
		if int(c) >= target.Len() {
			continue
		}
		d := distance.L2(desc, target.Row(int(c)))
		switch {
		case d < best:
			second = best
			best, bestIdx = d, int(c)
		case d < second:
			second = d
		}
	}
	if bestIdx < 0 {
		return 0, 0, false
	}
	// an equidistant rival makes the nearest ambiguous at any ratio
	if second <= best || best > m.ratio*second || best > m.maxDistance {
		return 0, 0, false
	}
	return uint32(bestIdx), best, true
}
