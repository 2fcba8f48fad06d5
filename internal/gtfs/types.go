package gtfs

// StopTimeRow is the subset of a stop_times.txt row the generator reads.
// Additional columns in the source are ignored.
type StopTimeRow struct {
	TripID      string `csv:"trip_id"`
	ArrivalTime string `csv:"arrival_time"`
	StopID      string `csv:"stop_id"`
}

// TripStop is one visit of a trip to a stop.
type TripStop struct {
	Time   int // seconds since midnight of the service day (can exceed 24h)
	StopID string
}

// TripIndex maps trip_id to its stop visits in input order.
type TripIndex map[string][]TripStop

// StopFrequency maps stop_id to the number of stop_times rows referencing it.
type StopFrequency map[string]int

// Validation is a synthetic fare validation event.
type Validation struct {
	TripID         string `json:"trip_id"`
	StopID         string `json:"stop_id"`
	ValidationTime string `json:"validation_time"`
	ValidationDate string `json:"validation_date,omitempty"`
}
