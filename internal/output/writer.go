package output

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/rs/zerolog/log"

	"validation-generator/internal/gtfs"
)

const DefaultProgressEvery = 10000

var errWriteAfterClose = errors.New("write after close")

// Tap receives every validation after it has been written. Tap errors are
// logged and never abort the run.
type Tap interface {
	PublishValidation(v gtfs.Validation) error
}

// Metrics is notified as the writer makes progress.
type Metrics interface {
	ValidationWritten()
	TapErrorInc()
	BatchObserve(d time.Duration)
}

type Option func(*Writer)

func WithProgressEvery(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.progressEvery = n
		}
	}
}

func WithTap(t Tap) Option { return func(w *Writer) { w.tap = t } }

func WithMetrics(m Metrics) Option { return func(w *Writer) { w.metrics = m } }

// Writer streams validations into a JSON array one element at a time.
type Writer struct {
	bw            *bufio.Writer
	progressEvery int
	tap           Tap
	metrics       Metrics

	count      int
	opened     bool
	closed     bool
	batchStart time.Time
}

func NewWriter(w io.Writer, opts ...Option) *Writer {
	wr := &Writer{
		bw:            bufio.NewWriter(w),
		progressEvery: DefaultProgressEvery,
	}
	for _, o := range opts {
		o(wr)
	}
	return wr
}

func (w *Writer) open() error {
	if w.opened {
		return nil
	}
	w.opened = true
	w.batchStart = time.Now()
	_, err := w.bw.WriteString("[\n")
	return err
}

// Write appends one element to the array.
func (w *Writer) Write(v gtfs.Validation) error {
	if w.closed {
		return errWriteAfterClose
	}
	if err := w.open(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if w.count > 0 {
		if _, err := w.bw.WriteString(",\n"); err != nil {
			return err
		}
	}
	if _, err := w.bw.WriteString("  "); err != nil {
		return err
	}
	if _, err := w.bw.Write(b); err != nil {
		return err
	}
	w.count++
	if w.metrics != nil {
		w.metrics.ValidationWritten()
	}

	if w.tap != nil {
		if err := w.tap.PublishValidation(v); err != nil {
			log.Warn().Err(err).Str("trip", v.TripID).Msg("tap publish failed")
			if w.metrics != nil {
				w.metrics.TapErrorInc()
			}
		}
	}

	if w.count%w.progressEvery == 0 {
		if err := w.bw.Flush(); err != nil {
			return err
		}
		if w.metrics != nil {
			w.metrics.BatchObserve(time.Since(w.batchStart))
		}
		w.batchStart = time.Now()
		log.Info().Msgf("Generated %d validations...", w.count)
	}
	return nil
}

// Count returns the number of elements written so far.
func (w *Writer) Count() int { return w.count }

// Close terminates the array and flushes. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if err := w.open(); err != nil {
		return err
	}
	w.closed = true
	end := "\n]"
	if w.count == 0 {
		end = "]"
	}
	if _, err := w.bw.WriteString(end); err != nil {
		return err
	}
	return w.bw.Flush()
}

// Drain writes every value of seq and closes the array. The context is
// checked between values.
func (w *Writer) Drain(ctx context.Context, seq iter.Seq[gtfs.Validation]) (int, error) {
	if err := w.open(); err != nil {
		return w.count, err
	}
	for v := range seq {
		if err := ctx.Err(); err != nil {
			return w.count, err
		}
		if err := w.Write(v); err != nil {
			return w.count, fmt.Errorf("write validation %d: %w", w.count+1, err)
		}
	}
	if err := w.Close(); err != nil {
		return w.count, err
	}
	log.Info().Msgf("Total validations generated: %d", w.count)
	return w.count, nil
}
