package schedule

import (
	"errors"
	"fmt"
	"strings"

	"validation-generator/internal/gtfs"
)

// TimePolicy selects what happens to a row whose arrival_time cannot be parsed.
type TimePolicy string

const (
	TimePolicySkip  TimePolicy = "skip"  // drop the row, keep going
	TimePolicyAbort TimePolicy = "abort" // fail the whole build
	TimePolicyZero  TimePolicy = "zero"  // index the row at 00:00:00
)

// ErrFrozen is returned by Add once Index has been called.
var ErrFrozen = errors.New("schedule builder is frozen")

// Stats counts what the builder did with the rows it was given.
type Stats struct {
	Rows             int
	Indexed          int
	SkippedMissing   int
	SkippedMalformed int
}

// Index is the immutable result of a build.
type Index struct {
	Trips     gtfs.TripIndex
	Frequency gtfs.StopFrequency
	Stats     Stats
}

func (i *Index) TripCount() int { return len(i.Trips) }
func (i *Index) StopCount() int { return len(i.Frequency) }

// Builder accumulates stop_times rows into a trip index and stop frequency table.
type Builder struct {
	policy TimePolicy
	trips  gtfs.TripIndex
	freq   gtfs.StopFrequency
	stats  Stats
	frozen bool
}

func NewBuilder(policy TimePolicy) *Builder {
	if policy == "" {
		policy = TimePolicySkip
	}
	return &Builder{
		policy: policy,
		trips:  make(gtfs.TripIndex),
		freq:   make(gtfs.StopFrequency),
	}
}

// Add indexes one row. Rows missing trip_id, arrival_time or stop_id are
// ignored without error.
func (b *Builder) Add(row gtfs.StopTimeRow) error {
	if b.frozen {
		return ErrFrozen
	}
	b.stats.Rows++

	tripID := strings.TrimSpace(row.TripID)
	arrival := strings.TrimSpace(row.ArrivalTime)
	stopID := strings.TrimSpace(row.StopID)
	if tripID == "" || arrival == "" || stopID == "" {
		b.stats.SkippedMissing++
		return nil
	}

	sec, err := gtfs.ParseDaySeconds(arrival)
	if err != nil {
		switch b.policy {
		case TimePolicyAbort:
			return fmt.Errorf("row %d (trip %s): %w", b.stats.Rows, tripID, err)
		case TimePolicyZero:
			sec = 0
		default:
			b.stats.SkippedMalformed++
			return nil
		}
	}

	b.trips[tripID] = append(b.trips[tripID], gtfs.TripStop{Time: sec, StopID: stopID})
	b.freq[stopID]++
	b.stats.Indexed++
	return nil
}

func (b *Builder) Stats() Stats { return b.stats }

// Index freezes the builder and returns what it accumulated. Callers must
// treat the returned maps as read-only.
func (b *Builder) Index() *Index {
	b.frozen = true
	return &Index{Trips: b.trips, Frequency: b.freq, Stats: b.stats}
}

// ParsePolicy maps a configuration string onto a TimePolicy.
func ParsePolicy(s string) (TimePolicy, error) {
	switch p := TimePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return TimePolicySkip, nil
	case TimePolicySkip, TimePolicyAbort, TimePolicyZero:
		return p, nil
	default:
		return "", fmt.Errorf("unknown time policy %q", s)
	}
}
