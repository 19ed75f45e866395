package domain

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// DateRange is an inclusive [Start, End] interval of calendar dates.
// Construct it with NewDateRange; the zero value is not a valid range.
type DateRange struct {
	Start civil.Date
	End   civil.Date
}

// NewDateRange validates start <= end and returns the range.
func NewDateRange(start, end civil.Date) (DateRange, error) {
	if !start.IsValid() || !end.IsValid() {
		return DateRange{}, ErrInvalidRange("invalid date in range %s..%s", start, end)
	}
	if start.After(end) {
		return DateRange{}, ErrInvalidRange("range start %s is after end %s", start, end)
	}
	return DateRange{Start: start, End: end}, nil
}

// ParseDateRange parses two YYYY-MM-DD strings into a DateRange.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := civil.ParseDate(start)
	if err != nil {
		return DateRange{}, ErrInvalidRange("parse start date %q: %v", start, err)
	}
	e, err := civil.ParseDate(end)
	if err != nil {
		return DateRange{}, ErrInvalidRange("parse end date %q: %v", end, err)
	}
	return NewDateRange(s, e)
}

// Days returns the number of calendar days covered, inclusive.
func (r DateRange) Days() int {
	return r.End.DaysSince(r.Start) + 1
}

// StartTime formats Start as YYYY-MM-DD, the layout the reporting API expects.
func (r DateRange) StartTime() string {
	return r.Start.String()
}

// EndTime formats End as YYYY-MM-DD.
func (r DateRange) EndTime() string {
	return r.End.String()
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start, r.End)
}
