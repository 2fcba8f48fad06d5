package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"validation-generator/internal/gtfs"
)

func TestSubject(t *testing.T) {
	v := gtfs.Validation{TripID: "trip 1.a", StopID: "COMM*2"}
	assert.Equal(t, "validations.trip_1_a.COMM_2", Subject("validations", v))
	assert.Equal(t, "sim.validations.trip_1_a.COMM_2", Subject("sim.validations.", v))
	assert.Equal(t, "trip_1_a.COMM_2", Subject("", v))
}

func TestSubjectTokenEmpty(t *testing.T) {
	assert.Equal(t, "_", subjectToken("  "))
	assert.Equal(t, "a_b", subjectToken("a>b"))
}
