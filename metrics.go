package bowgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// prometheus subpackage provides a client_golang implementation.
type MetricsCollector interface {
	// RecordAdd is called after each keyframe insertion.
	RecordAdd(duration time.Duration, err error)

	// RecordBatchAdd is called after each batch insertion. count is the
	// number of keyframes attempted.
	RecordBatchAdd(count int, duration time.Duration, err error)

	// RecordRemove is called after each keyframe suppression.
	RecordRemove(duration time.Duration, err error)

	// RecordRetrieve is called after each retrieval query. results is the
	// number of ranked keyframes returned.
	RecordRetrieve(results int, duration time.Duration, err error)

	// RecordMatch is called after each matching call.
	RecordMatch(matches int, duration time.Duration, err error)

	// RecordSnapshot is called after each snapshot save or load. op is
	// "save" or "load".
	RecordSnapshot(op string, bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(time.Duration, error)                     {}
func (NoopMetricsCollector) RecordBatchAdd(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordRemove(time.Duration, error)                  {}
func (NoopMetricsCollector) RecordRetrieve(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordMatch(int, time.Duration, error)              {}
func (NoopMetricsCollector) RecordSnapshot(string, int64, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	AddCount           atomic.Int64
	AddErrors          atomic.Int64
	AddTotalNanos      atomic.Int64
	BatchAddCount      atomic.Int64
	BatchAddItems      atomic.Int64
	BatchAddErrors     atomic.Int64
	RemoveCount        atomic.Int64
	RemoveErrors       atomic.Int64
	RetrieveCount      atomic.Int64
	RetrieveErrors     atomic.Int64
	RetrieveResults    atomic.Int64
	RetrieveTotalNanos atomic.Int64
	MatchCount         atomic.Int64
	MatchErrors        atomic.Int64
	MatchTotal         atomic.Int64
	SnapshotSaves      atomic.Int64
	SnapshotLoads      atomic.Int64
	SnapshotErrors     atomic.Int64
	SnapshotBytes      atomic.Int64
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(duration time.Duration, err error) {
	b.AddCount.Add(1)
	b.AddTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AddErrors.Add(1)
	}
}

// RecordBatchAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchAdd(count int, _ time.Duration, err error) {
	b.BatchAddCount.Add(1)
	b.BatchAddItems.Add(int64(count))
	if err != nil {
		b.BatchAddErrors.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(_ time.Duration, err error) {
	b.RemoveCount.Add(1)
	if err != nil {
		b.RemoveErrors.Add(1)
	}
}

// RecordRetrieve implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRetrieve(results int, duration time.Duration, err error) {
	b.RetrieveCount.Add(1)
	b.RetrieveTotalNanos.Add(duration.Nanoseconds())
	b.RetrieveResults.Add(int64(results))
	if err != nil {
		b.RetrieveErrors.Add(1)
	}
}

// RecordMatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMatch(matches int, _ time.Duration, err error) {
	b.MatchCount.Add(1)
	b.MatchTotal.Add(int64(matches))
	if err != nil {
		b.MatchErrors.Add(1)
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(op string, bytes int64, _ time.Duration, err error) {
	switch op {
	case "save":
		b.SnapshotSaves.Add(1)
	case "load":
		b.SnapshotLoads.Add(1)
	}
	b.SnapshotBytes.Add(bytes)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:         b.AddCount.Load(),
		AddErrors:        b.AddErrors.Load(),
		AddAvgNanos:      avg(b.AddTotalNanos.Load(), b.AddCount.Load()),
		BatchAddCount:    b.BatchAddCount.Load(),
		BatchAddItems:    b.BatchAddItems.Load(),
		BatchAddErrors:   b.BatchAddErrors.Load(),
		RemoveCount:      b.RemoveCount.Load(),
		RemoveErrors:     b.RemoveErrors.Load(),
		RetrieveCount:    b.RetrieveCount.Load(),
		RetrieveErrors:   b.RetrieveErrors.Load(),
		RetrieveAvgNanos: avg(b.RetrieveTotalNanos.Load(), b.RetrieveCount.Load()),
		MatchCount:       b.MatchCount.Load(),
		MatchErrors:      b.MatchErrors.Load(),
		MatchAvg:         avg(b.MatchTotal.Load(), b.MatchCount.Load()),
		SnapshotSaves:    b.SnapshotSaves.Load(),
		SnapshotLoads:    b.SnapshotLoads.Load(),
		SnapshotErrors:   b.SnapshotErrors.Load(),
		SnapshotBytes:    b.SnapshotBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddCount         int64
	AddErrors        int64
	AddAvgNanos      int64
	BatchAddCount    int64
	BatchAddItems    int64
	BatchAddErrors   int64
	RemoveCount      int64
	RemoveErrors     int64
	RetrieveCount    int64
	RetrieveErrors   int64
	RetrieveAvgNanos int64
	MatchCount       int64
	MatchErrors      int64
	MatchAvg         int64
	SnapshotSaves    int64
	SnapshotLoads    int64
	SnapshotErrors   int64
	SnapshotBytes    int64
}
