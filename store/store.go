// Package store holds the retrieval store: per-keyframe bag-of-words
// histograms and level features, plus the global inverted index from
// level word to the keyframes whose level feature contains it.
//
// The inverted index is derived state. Every mutation updates it together
// with the owning maps, and CheckInvariants verifies the two agree.
//
// Store methods do not lock. Callers that mutate, or that need a sequence of
// calls to be observed atomically, hold the scoped lock:
//
//	release := s.Acquire()
//	defer release()
//
// Reads that run without the lock concurrently with a mutation may observe a
// torn state.
package store

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/hupe1980/bowgo/bow"
)

var (
	// ErrNotFound is returned for unknown keyframe ids and words.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned by Add when the keyframe id is present.
	ErrAlreadyExists = errors.New("store: keyframe already exists")

	// ErrEmptyFeature is returned when a keyframe has no words.
	ErrEmptyFeature = errors.New("store: empty feature")

	// ErrInconsistent is returned by CheckInvariants.
	ErrInconsistent = errors.New("store: inverted index inconsistent")
)

// Stats is a point-in-time summary of the store.
type Stats struct {
	Keyframes int
	Words     int
	Postings  uint64
}

// Store is the retrieval store.
type Store struct {
	mu sync.Mutex

	features map[bow.KeyframeID]bow.Feature
	levels   map[bow.KeyframeID]bow.LevelFeature
	index    map[bow.WordID]*Postings
}

// New creates an empty store.
func New() *Store {
	return &Store{
		features: make(map[bow.KeyframeID]bow.Feature),
		levels:   make(map[bow.KeyframeID]bow.LevelFeature),
		index:    make(map[bow.WordID]*Postings),
	}
}

// Acquire takes the store lock and returns the func that releases it.
// Calling release more than once is a no-op.
func (s *Store) Acquire() (release func()) {
	s.mu.Lock()
	var once sync.Once
	return func() { once.Do(s.mu.Unlock) }
}

func validate(f bow.Feature, lf bow.LevelFeature) error {
	if len(f) == 0 || len(lf) == 0 {
		return ErrEmptyFeature
	}
	if err := f.Validate(); err != nil {
		return err
	}
	return lf.Validate()
}

// Add stores the features of keyframe id and indexes its level words.
// It fails with ErrAlreadyExists if id is present.
func (s *Store) Add(id bow.KeyframeID, f bow.Feature, lf bow.LevelFeature) error {
	if err := validate(f, lf); err != nil {
		return fmt.Errorf("keyframe %d: %w", id, err)
	}
	if _, ok := s.features[id]; ok {
		return fmt.Errorf("%w: %d", ErrAlreadyExists, id)
	}
	s.insert(id, f, lf)
	return nil
}

// Put stores the features of keyframe id, replacing any previous entry.
// It reports whether an entry was replaced.
func (s *Store) Put(id bow.KeyframeID, f bow.Feature, lf bow.LevelFeature) (bool, error) {
	if err := validate(f, lf); err != nil {
		return false, fmt.Errorf("keyframe %d: %w", id, err)
	}
	_, replaced := s.features[id]
	if replaced {
		s.retract(id)
	}
	s.insert(id, f, lf)
	return replaced, nil
}

func (s *Store) insert(id bow.KeyframeID, f bow.Feature, lf bow.LevelFeature) {
	s.features[id] = f
	s.levels[id] = lf
	for _, n := range lf {
		p, ok := s.index[n.Word]
		if !ok {
			p = NewPostings()
			s.index[n.Word] = p
		}
		p.Add(id)
	}
}

func (s *Store) retract(id bow.KeyframeID) {
	for _, n := range s.levels[id] {
		p, ok := s.index[n.Word]
		if !ok {
			continue
		}
		p.Remove(id)
		if p.IsEmpty() {
			delete(s.index, n.Word)
		}
	}
	delete(s.features, id)
	delete(s.levels, id)
}

// Remove deletes keyframe id and retracts its postings.
func (s *Store) Remove(id bow.KeyframeID) error {
	if _, ok := s.features[id]; !ok {
		return fmt.Errorf("%w: keyframe %d", ErrNotFound, id)
	}
	s.retract(id)
	return nil
}

// Contains reports whether keyframe id is stored.
func (s *Store) Contains(id bow.KeyframeID) bool {
	_, ok := s.features[id]
	return ok
}

// Feature returns the histogram of keyframe id.
func (s *Store) Feature(id bow.KeyframeID) (bow.Feature, error) {
	f, ok := s.features[id]
	if !ok {
		return nil, fmt.Errorf("%w: keyframe %d", ErrNotFound, id)
	}
	return f, nil
}

// LevelFeature returns the level feature of keyframe id.
func (s *Store) LevelFeature(id bow.KeyframeID) (bow.LevelFeature, error) {
	lf, ok := s.levels[id]
	if !ok {
		return nil, fmt.Errorf("%w: keyframe %d", ErrNotFound, id)
	}
	return lf, nil
}

// Postings returns the keyframes indexed under word w.
// The returned set is owned by the store and must not be modified.
func (s *Store) Postings(w bow.WordID) (*Postings, error) {
	p, ok := s.index[w]
	if !ok {
		return nil, fmt.Errorf("%w: word %d", ErrNotFound, w)
	}
	return p, nil
}

// Len returns the number of keyframes.
func (s *Store) Len() int { return len(s.features) }

// IDs returns the stored keyframe ids in ascending order.
func (s *Store) IDs() []bow.KeyframeID {
	return slices.Sorted(maps.Keys(s.features))
}

// Words returns the indexed level words in ascending order.
func (s *Store) Words() []bow.WordID {
	return slices.Sorted(maps.Keys(s.index))
}

// Features iterates keyframe histograms in ascending id order.
func (s *Store) Features() iter.Seq2[bow.KeyframeID, bow.Feature] {
	return func(yield func(bow.KeyframeID, bow.Feature) bool) {
		for _, id := range s.IDs() {
			if !yield(id, s.features[id]) {
				return
			}
		}
	}
}

// LevelFeatures iterates keyframe level features in ascending id order.
func (s *Store) LevelFeatures() iter.Seq2[bow.KeyframeID, bow.LevelFeature] {
	return func(yield func(bow.KeyframeID, bow.LevelFeature) bool) {
		for _, id := range s.IDs() {
			if !yield(id, s.levels[id]) {
				return
			}
		}
	}
}

// Index iterates the inverted index in ascending word order.
func (s *Store) Index() iter.Seq2[bow.WordID, *Postings] {
	return func(yield func(bow.WordID, *Postings) bool) {
		for _, w := range s.Words() {
			if !yield(w, s.index[w]) {
				return
			}
		}
	}
}

// Stats returns counts of keyframes, words and postings.
func (s *Store) Stats() Stats {
	st := Stats{Keyframes: len(s.features), Words: len(s.index)}
	for _, p := range s.index {
		st.Postings += p.Cardinality()
	}
	return st
}

// Reset clears the store.
func (s *Store) Reset() {
	clear(s.features)
	clear(s.levels)
	clear(s.index)
}

// Swap replaces the contents of s with those of other and leaves other empty.
func (s *Store) Swap(other *Store) {
	s.features, other.features = other.features, make(map[bow.KeyframeID]bow.Feature)
	s.levels, other.levels = other.levels, make(map[bow.KeyframeID]bow.LevelFeature)
	s.index, other.index = other.index, make(map[bow.WordID]*Postings)
}

// CheckInvariants verifies that keyframe k is in the postings of word w iff
// w is a word of k's level feature, and that both feature maps share keys.
func (s *Store) CheckInvariants() error {
	if len(s.features) != len(s.levels) {
		return fmt.Errorf("%w: %d features, %d level features", ErrInconsistent, len(s.features), len(s.levels))
	}
	var expected uint64
	for id, lf := range s.levels {
		if _, ok := s.features[id]; !ok {
			return fmt.Errorf("%w: keyframe %d has no feature", ErrInconsistent, id)
		}
		for _, n := range lf {
			if len(n.Indices) == 0 {
				return fmt.Errorf("%w: keyframe %d word %d has no descriptors", ErrInconsistent, id, n.Word)
			}
			p, ok := s.index[n.Word]
			if !ok || !p.Contains(id) {
				return fmt.Errorf("%w: keyframe %d missing from postings of word %d", ErrInconsistent, id, n.Word)
			}
		}
		expected += uint64(len(lf))
	}
	var actual uint64
	for w, p := range s.index {
		if p.IsEmpty() {
			return fmt.Errorf("%w: empty postings for word %d", ErrInconsistent, w)
		}
		actual += p.Cardinality()
	}
	// every (word, keyframe) pair derived from level features is present, so
	// equal totals rule out extra postings
	if actual != expected {
		return fmt.Errorf("%w: %d postings, %d level words", ErrInconsistent, actual, expected)
	}
	return nil
}

// Restore builds a store from decoded maps and verifies its invariants.
func Restore(
	features map[bow.KeyframeID]bow.Feature,
	levels map[bow.KeyframeID]bow.LevelFeature,
	index map[bow.WordID]*Postings,
) (*Store, error) {
	s := New()
	if features != nil {
		s.features = features
	}
	if levels != nil {
		s.levels = levels
	}
	if index != nil {
		s.index = index
	}
	for id, f := range s.features {
		if err := validate(f, s.levels[id]); err != nil {
			return nil, fmt.Errorf("%w: keyframe %d: %w", ErrInconsistent, id, err)
		}
	}
	if err := s.CheckInvariants(); err != nil {
		return nil, err
	}
	return s, nil
}
