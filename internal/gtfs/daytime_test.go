package gtfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDaySeconds(t *testing.T) {
	cases := map[string]int{
		"00:00:00":  0,
		"08:00:00":  28800,
		"01:01:01":  3661,
		"25:00:00":  90000,
		" 7:05:09 ": 25509,
		"23:59:59":  86399,
		"100:00:00": 360000,
	}
	for in, want := range cases {
		got, err := ParseDaySeconds(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseDaySecondsMalformed(t *testing.T) {
	for _, in := range []string{"", "08:00", "08:00:00:00", "aa:00:00", "08:xx:00", "-1:00:00", "08::00"} {
		_, err := ParseDaySeconds(in)
		assert.ErrorIs(t, err, ErrMalformedTime, in)
	}
}

func TestFormatDaySeconds(t *testing.T) {
	assert.Equal(t, "01:01:01", FormatDaySeconds(3661))
	assert.Equal(t, "25:00:00", FormatDaySeconds(90000))
	assert.Equal(t, "00:00:00", FormatDaySeconds(0))
	assert.Equal(t, "23:59:59", FormatDaySeconds(86399))
}
