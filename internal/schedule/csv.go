package schedule

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"

	"validation-generator/internal/gtfs"
)

// ErrMissingColumns is returned when the header lacks trip_id, arrival_time or stop_id.
var ErrMissingColumns = errors.New("required columns not found in CSV")

var requiredColumns = []string{"trip_id", "arrival_time", "stop_id"}

var installReader sync.Once

// source carries per-call state through gocsv's global reader factory.
type source struct {
	io.Reader
	headerErr error
}

// headerReader trims the header row and checks for the required columns
// before gocsv maps it onto struct tags.
type headerReader struct {
	*csv.Reader
	src        *source
	seenHeader bool
}

func (r *headerReader) Read() ([]string, error) {
	rec, err := r.Reader.Read()
	if r.seenHeader {
		return rec, err
	}
	r.seenHeader = true
	if err != nil {
		if err == io.EOF {
			err = fmt.Errorf("%w: empty input", ErrMissingColumns)
		}
		r.fail(err)
		return nil, err
	}
	present := make(map[string]bool, len(rec))
	for i, col := range rec {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		rec[i] = col
		present[col] = true
	}
	var missing []string
	for _, c := range requiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		err := fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
		r.fail(err)
		return nil, err
	}
	return rec, nil
}

func (r *headerReader) ReadAll() ([][]string, error) {
	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func (r *headerReader) fail(err error) {
	if r.src != nil {
		r.src.headerErr = err
	}
}

func setupReader() {
	// Allow us to ignore those naughty records that have missing columns
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.FieldsPerRecord = -1
		src, _ := in.(*source)
		return &headerReader{Reader: r, src: src}
	})
}

// LoadCSV streams a stop_times table into a new Index. Nothing is returned
// unless the whole input was read successfully.
func LoadCSV(in io.Reader, policy TimePolicy) (*Index, error) {
	installReader.Do(setupReader)

	b := NewBuilder(policy)
	src := &source{Reader: in}
	err := gocsv.UnmarshalToCallbackWithError(src, func(row gtfs.StopTimeRow) error {
		return b.Add(row)
	})
	if src.headerErr != nil {
		return nil, src.headerErr
	}
	if err != nil {
		return nil, fmt.Errorf("read stop_times: %w", err)
	}
	return b.Index(), nil
}

// LoadFile opens path and calls LoadCSV.
func LoadFile(path string, policy TimePolicy) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	log.Info().Str("file", path).Msg("Loading stop_times")
	idx, err := LoadCSV(f, policy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Info().
		Int("rows", idx.Stats.Rows).
		Int("trips", idx.TripCount()).
		Int("stops", idx.StopCount()).
		Int("skipped_missing", idx.Stats.SkippedMissing).
		Int("skipped_malformed", idx.Stats.SkippedMalformed).
		Msg("Indexed schedule")
	return idx, nil
}
