package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"validation-generator/internal/gtfs"
	"validation-generator/internal/schedule"
	"validation-generator/internal/sim"
)

func sampleIndex() *schedule.Index {
	return &schedule.Index{
		Trips: gtfs.TripIndex{
			"T1": {{Time: 28800, StopID: "S1"}, {Time: 29100, StopID: "S2"}, {Time: 82800, StopID: "S1"}},
			"T2": {{Time: 43200, StopID: "S3"}},
		},
		Frequency: gtfs.StopFrequency{"S1": 2, "S2": 1, "S3": 1},
	}
}

type recordingTap struct {
	got []gtfs.Validation
	err error
}

func (r *recordingTap) PublishValidation(v gtfs.Validation) error {
	r.got = append(r.got, v)
	return r.err
}

type countingMetrics struct {
	written, tapErrs, batches int
}

func (m *countingMetrics) ValidationWritten()         { m.written++ }
func (m *countingMetrics) TapErrorInc()               { m.tapErrs++ }
func (m *countingMetrics) BatchObserve(time.Duration) { m.batches++ }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDrainProducesValidJSON(t *testing.T) {
	var buf bytes.Buffer
	tap := &recordingTap{}
	w := NewWriter(&buf, WithTap(tap))

	seq := sim.NewSampler(sampleIndex(), sim.NewRand(5), sim.WithValidationDate("2025-06-22")).Generate(250)
	var emitted []gtfs.Validation
	n, err := w.Drain(context.Background(), func(yield func(gtfs.Validation) bool) {
		for v := range seq {
			emitted = append(emitted, v)
			if !yield(v) {
				return
			}
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.Equal(t, 250, w.Count())

	var parsed []gtfs.Validation
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, emitted, parsed)
	assert.Equal(t, emitted, tap.got)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Equal(t, "2025-06-22", raw[0]["validation_date"])
}

func TestDrainEmpty(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewWriter(&buf).Drain(context.Background(), slices.Values([]gtfs.Validation(nil)))
	require.NoError(t, err)
	assert.Zero(t, n)

	var parsed []gtfs.Validation
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Empty(t, parsed)
	assert.NotNil(t, parsed)
}

func TestWriterLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Write(gtfs.Validation{TripID: "T1", StopID: "S1", ValidationTime: "08:00:00"}))
	require.NoError(t, w.Write(gtfs.Validation{TripID: "T2", StopID: "S3", ValidationTime: "25:00:00"}))
	require.NoError(t, w.Close())

	want := "[\n" +
		`  {"trip_id":"T1","stop_id":"S1","validation_time":"08:00:00"}` + ",\n" +
		`  {"trip_id":"T2","stop_id":"S3","validation_time":"25:00:00"}` +
		"\n]"
	assert.Equal(t, want, buf.String())
	assert.Error(t, w.Write(gtfs.Validation{}))
}

func TestWriterProgressAndMetrics(t *testing.T) {
	var buf bytes.Buffer
	m := &countingMetrics{}
	tap := &recordingTap{err: errors.New("nats down")}
	w := NewWriter(&buf, WithProgressEvery(10), WithMetrics(m), WithTap(tap))

	vals := make([]gtfs.Validation, 35)
	for i := range vals {
		vals[i] = gtfs.Validation{TripID: "T", StopID: "S", ValidationTime: "00:00:00"}
	}
	n, err := w.Drain(context.Background(), slices.Values(vals))
	require.NoError(t, err)
	assert.Equal(t, 35, n)
	assert.Equal(t, 35, m.written)
	assert.Equal(t, 35, m.tapErrs)
	assert.Equal(t, 3, m.batches)
}

func TestDrainWriteFailure(t *testing.T) {
	w := NewWriter(failingWriter{}, WithProgressEvery(1))
	_, err := w.Drain(context.Background(), slices.Values([]gtfs.Validation{{TripID: "T"}}))
	assert.ErrorContains(t, err, "disk full")
}

func TestDrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	seq := sim.NewSampler(sampleIndex(), sim.NewRand(1)).Generate(10)
	_, err := NewWriter(&buf).Drain(ctx, seq)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateFileCommit(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "validations.json")

	f, err := CreateFile(target)
	require.NoError(t, err)
	w := NewWriter(f)
	require.NoError(t, w.Write(gtfs.Validation{TripID: "T1", StopID: "S1", ValidationTime: "08:00:00"}))
	require.NoError(t, w.Close())

	_, err = os.Stat(target)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, f.Commit())
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	var parsed []gtfs.Validation
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Len(t, parsed, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCreateFileAbortKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "validations.json")
	require.NoError(t, os.WriteFile(target, []byte("[]"), 0o644))

	f, err := CreateFile(target)
	require.NoError(t, err)
	_, err = f.WriteString("[\n  {")
	require.NoError(t, err)
	f.Abort()

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
