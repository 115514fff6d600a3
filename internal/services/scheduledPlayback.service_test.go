package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	assert.NoError(t, err)
	return parsed
}

func TestComputeNextRunRollsPastTarget(t *testing.T) {
	// Midnight UTC has already passed at 00:30, so the run lands tomorrow.
	reference := mustParse(t, "2024-01-01T00:30:00Z")
	next := ComputeNextRun(0, 0, reference)
	assert.Equal(t, mustParse(t, "2024-01-02T00:00:00Z"), next)
}

func TestComputeNextRunSameDay(t *testing.T) {
	// 01:30 UTC is still ahead of midnight, so the run stays on the same day.
	reference := mustParse(t, "2024-01-01T00:00:00Z")
	next := ComputeNextRun(90, 0, reference)
	assert.Equal(t, mustParse(t, "2024-01-01T01:30:00Z"), next)
}

func TestComputeNextRunExactBoundaryRollsForward(t *testing.T) {
	// A target exactly at the reference is not "after" it.
	reference := mustParse(t, "2024-01-01T10:00:00Z")
	next := ComputeNextRun(600, 0, reference)
	assert.Equal(t, mustParse(t, "2024-01-02T10:00:00Z"), next)
}

func TestComputeNextRunHonorsTimezoneOffset(t *testing.T) {
	// 18:00 at UTC-5 is 23:00 UTC; still ahead of a 20:00 UTC reference.
	reference := mustParse(t, "2024-06-15T20:00:00Z")
	next := ComputeNextRun(18*60, -300, reference)
	assert.Equal(t, mustParse(t, "2024-06-15T23:00:00Z"), next)

	// Once 23:00 UTC has passed, the same schedule fires the next day.
	reference = mustParse(t, "2024-06-15T23:30:00Z")
	next = ComputeNextRun(18*60, -300, reference)
	assert.Equal(t, mustParse(t, "2024-06-16T23:00:00Z"), next)
}

func TestComputeNextRunAlwaysUTC(t *testing.T) {
	reference := mustParse(t, "2024-03-10T12:00:00Z")
	next := ComputeNextRun(8*60, 120, reference)
	assert.Equal(t, time.UTC, next.Location())
	// 08:00 at UTC+2 is 06:00 UTC, already behind a noon reference.
	assert.Equal(t, mustParse(t, "2024-03-11T06:00:00Z"), next)
}
