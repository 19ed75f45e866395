// Package report implements the asynchronous impression-share report engine:
// date-range chunking, the per-chunk job lifecycle and the daily job quota.
package report

import (
	"cloud.google.com/go/civil"

	"searchads-tap/internal/domain"
)

// DefaultMaxChunkDays is the longest window the reporting API accepts for a
// single custom report.
const DefaultMaxChunkDays = 30

// SplitDateRange splits [start, end] into consecutive, gap-free chunks of at
// most maxWindowDays calendar days each. The first chunk starts at start and
// the last ends exactly at end.
func SplitDateRange(start, end civil.Date, maxWindowDays int) ([]domain.DateRange, error) {
	if maxWindowDays < 1 {
		return nil, domain.ErrInvalidRange("max window must be at least 1 day, got %d", maxWindowDays)
	}
	r, err := domain.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}
	// Clamp so AddDays never overflows on very large windows.
	if maxWindowDays > r.Days() {
		maxWindowDays = r.Days()
	}

	var chunks []domain.DateRange
	for cur := start; !cur.After(end); {
		chunkEnd := cur.AddDays(maxWindowDays - 1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, domain.DateRange{Start: cur, End: chunkEnd})
		cur = chunkEnd.AddDays(1)
	}
	return chunks, nil
}

// Split is SplitDateRange over an already validated range.
func Split(r domain.DateRange, maxWindowDays int) ([]domain.DateRange, error) {
	return SplitDateRange(r.Start, r.End, maxWindowDays)
}
