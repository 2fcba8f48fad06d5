package sim

import (
	"iter"
	"math/rand/v2"
	"slices"

	"validation-generator/internal/gtfs"
	"validation-generator/internal/schedule"
)

const (
	PeakMultiplierValue = 5.0
	OffPeakMultiplier   = 1.0
)

// Peak windows in fractional hours since service-day midnight.
var (
	MorningPeak = [2]float64{7.0, 9.5}
	EveningPeak = [2]float64{16.5, 19.0}
)

// Rand is the random source the sampler draws from. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

// NewRand returns a PCG-backed source for the given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

type Option func(*Sampler)

// WithValidationDate stamps every generated validation with date (YYYY-MM-DD).
func WithValidationDate(date string) Option {
	return func(s *Sampler) { s.date = date }
}

// Sampler draws synthetic validations from a frozen schedule index.
// It is not safe for concurrent use because the random source is not.
type Sampler struct {
	trips   gtfs.TripIndex
	freq    gtfs.StopFrequency
	tripIDs []string
	rng     Rand
	date    string

	weights []float64
	skipped int
}

func NewSampler(idx *schedule.Index, rng Rand, opts ...Option) *Sampler {
	ids := make([]string, 0, len(idx.Trips))
	for id := range idx.Trips {
		ids = append(ids, id)
	}
	// map order is random; sort so a seeded run is reproducible
	slices.Sort(ids)

	s := &Sampler{
		trips:   idx.Trips,
		freq:    idx.Frequency,
		tripIDs: ids,
		rng:     rng,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// IsPeak reports whether sec falls in the morning or evening peak.
// Hours are not wrapped, so 31:00:00 is not a morning peak.
func IsPeak(sec int) bool {
	hour := float64(sec) / 3600.0
	return (hour >= MorningPeak[0] && hour < MorningPeak[1]) ||
		(hour >= EveningPeak[0] && hour < EveningPeak[1])
}

func PeakMultiplier(sec int) float64 {
	if IsPeak(sec) {
		return PeakMultiplierValue
	}
	return OffPeakMultiplier
}

// Weight is the relative chance of ts being picked within its trip.
func (s *Sampler) Weight(ts gtfs.TripStop) float64 {
	freq := float64(s.freq[ts.StopID])
	if freq == 0 {
		freq = 1
	}
	return PeakMultiplier(ts.Time) * freq
}

// WeightedIndex picks an index with probability proportional to its weight.
// Rounding that pushes the draw past the final sum selects the last index.
func WeightedIndex(rng Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	r := rng.Float64() * total
	sum := 0.0
	for i, w := range weights {
		sum += w
		if r < sum {
			return i
		}
	}
	return len(weights) - 1
}

// DrawFromTrip picks one stop of tripID. It returns false if the trip is
// unknown or has no stops.
func (s *Sampler) DrawFromTrip(tripID string) (gtfs.Validation, bool) {
	stops := s.trips[tripID]
	if len(stops) == 0 {
		return gtfs.Validation{}, false
	}

	s.weights = s.weights[:0]
	for _, st := range stops {
		s.weights = append(s.weights, s.Weight(st))
	}
	chosen := stops[WeightedIndex(s.rng, s.weights)]

	return gtfs.Validation{
		TripID:         tripID,
		StopID:         chosen.StopID,
		ValidationTime: gtfs.FormatDaySeconds(chosen.Time),
		ValidationDate: s.date,
	}, true
}

// Draw picks a trip uniformly and then a stop within it.
func (s *Sampler) Draw() (gtfs.Validation, bool) {
	if len(s.tripIDs) == 0 {
		return gtfs.Validation{}, false
	}
	return s.DrawFromTrip(s.tripIDs[s.rng.IntN(len(s.tripIDs))])
}

// Generate performs count draws lazily, yielding each one that produced a
// validation. Failed draws are not retried, so fewer than count values may
// be yielded.
func (s *Sampler) Generate(count int) iter.Seq[gtfs.Validation] {
	return func(yield func(gtfs.Validation) bool) {
		for range count {
			v, ok := s.Draw()
			if !ok {
				s.skipped++
				continue
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Skipped returns how many draws produced no validation so far.
func (s *Sampler) Skipped() int { return s.skipped }

func (s *Sampler) TripCount() int { return len(s.tripIDs) }
