package schedule

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"validation-generator/internal/gtfs"
)

const stopTimesCSV = `trip_id,arrival_time,departure_time,stop_id,stop_sequence
T1,08:00:00,08:00:30,S1,1
T1,08:05:00,08:05:30,S2,2
T1,23:00:00,23:00:00,S1,3
T2,12:00:00,12:00:00,S3,1
,12:00:00,12:00:00,S4,1
T3,,12:00:00,S4,1
T4,12:00:00
`

func TestLoadCSV(t *testing.T) {
	idx, err := LoadCSV(strings.NewReader(stopTimesCSV), TimePolicySkip)
	require.NoError(t, err)

	assert.Equal(t, []gtfs.TripStop{
		{Time: 28800, StopID: "S1"},
		{Time: 29100, StopID: "S2"},
		{Time: 82800, StopID: "S1"},
	}, idx.Trips["T1"])
	assert.Len(t, idx.Trips, 2)
	assert.Equal(t, gtfs.StopFrequency{"S1": 2, "S2": 1, "S3": 1}, idx.Frequency)
	assert.Equal(t, 7, idx.Stats.Rows)
	assert.Equal(t, 3, idx.Stats.SkippedMissing)
}

func TestLoadCSVHeaderNormalisation(t *testing.T) {
	in := "\ufefftrip_id, stop_id ,arrival_time\nT1,S1,07:30:00\n"
	idx, err := LoadCSV(strings.NewReader(in), TimePolicySkip)
	require.NoError(t, err)
	assert.Equal(t, []gtfs.TripStop{{Time: 27000, StopID: "S1"}}, idx.Trips["T1"])
}

func TestLoadCSVMissingColumns(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("trip_id,stop_id\nT1,S1\n"), TimePolicySkip)
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "arrival_time")

	_, err = LoadCSV(strings.NewReader(""), TimePolicySkip)
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestLoadCSVAbortOnMalformedTime(t *testing.T) {
	in := "trip_id,arrival_time,stop_id\nT1,08:00:00,S1\nT1,eight,S2\n"
	idx, err := LoadCSV(strings.NewReader(in), TimePolicyAbort)
	assert.Nil(t, idx)
	assert.ErrorIs(t, err, gtfs.ErrMalformedTime)
}

func TestLoadCSVHeaderOnly(t *testing.T) {
	idx, err := LoadCSV(strings.NewReader("trip_id,arrival_time,stop_id\n"), TimePolicySkip)
	require.NoError(t, err)
	assert.Empty(t, idx.Trips)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop_times.txt")
	require.NoError(t, os.WriteFile(path, []byte(stopTimesCSV), 0o644))

	idx, err := LoadFile(path, TimePolicySkip)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.TripCount())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.txt"), TimePolicySkip)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
