package services

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestDedupWindow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	d := NewDedupSet(clock, time.Minute)

	assert.False(t, d.Seen("m1"))
	assert.True(t, d.Seen("m1"))
	assert.False(t, d.Seen(""))
	assert.False(t, d.Seen(""))

	clock.Advance(61 * time.Second)
	assert.Equal(t, 1, d.Sweep())
	assert.Zero(t, d.Len())
	assert.False(t, d.Seen("m1"))
}
