package bowgo

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/bowgo/blobstore"
	"github.com/hupe1980/bowgo/descriptor"
	"github.com/hupe1980/bowgo/internal/matcher"
	"github.com/hupe1980/bowgo/internal/retrieval"
	"github.com/hupe1980/bowgo/persistence"
	"github.com/hupe1980/bowgo/store"
	"github.com/hupe1980/bowgo/vocabulary"
)

var (
	// ErrInvalidConfiguration is returned when the vocabulary is missing or
	// invalid, or an option is out of range.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEmptyInput is returned for queries or keyframes without descriptors.
	ErrEmptyInput = errors.New("empty input")

	// ErrNotFound is returned for unknown keyframe ids.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when adding a keyframe id that is present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNoCandidates is returned when no keyframe shares a word with the
	// query, or none of the supplied candidates is stored.
	ErrNoCandidates = errors.New("no candidates")

	// ErrNoneAboveThreshold is returned when every candidate scores at or
	// below the threshold.
	ErrNoneAboveThreshold = errors.New("no candidate above threshold")

	// ErrIOFailure is returned when a snapshot cannot be written, opened or
	// parsed.
	ErrIOFailure = errors.New("io failure")
)

// ErrDescriptorMismatch indicates descriptors whose element type or width
// does not match the vocabulary.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrDescriptorMismatch struct {
	WantType descriptor.Type
	WantSize int
	GotType  descriptor.Type
	GotSize  int
	cause    error
}

func (e *ErrDescriptorMismatch) Error() string {
	return fmt.Sprintf("descriptor mismatch: vocabulary expects %s x %d, got %s x %d",
		e.WantType, e.WantSize, e.GotType, e.GotSize)
}

func (e *ErrDescriptorMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var mm *vocabulary.MismatchError
	if errors.As(err, &mm) {
		return &ErrDescriptorMismatch{
			WantType: mm.WantType,
			WantSize: mm.WantSize,
			GotType:  mm.GotType,
			GotSize:  mm.GotSize,
			cause:    err,
		}
	}

	switch {
	case errors.Is(err, retrieval.ErrEmptyQuery),
		errors.Is(err, matcher.ErrEmptyQuery),
		errors.Is(err, matcher.ErrNoDescriptors),
		errors.Is(err, store.ErrEmptyFeature):
		return fmt.Errorf("%w: %w", ErrEmptyInput, err)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrAlreadyExists):
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case errors.Is(err, retrieval.ErrNoCandidates):
		return fmt.Errorf("%w: %w", ErrNoCandidates, err)
	case errors.Is(err, retrieval.ErrNoneAboveThreshold):
		return fmt.Errorf("%w: %w", ErrNoneAboveThreshold, err)
	case errors.Is(err, vocabulary.ErrInvalidVocabulary),
		errors.Is(err, vocabulary.ErrInvalidLevel):
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	case errors.Is(err, persistence.ErrCorrupt),
		errors.Is(err, persistence.ErrInvalidMagic),
		errors.Is(err, persistence.ErrInvalidVersion),
		errors.Is(err, persistence.ErrUnknownCompression),
		errors.Is(err, blobstore.ErrNotFound),
		errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return err
}
