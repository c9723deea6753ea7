package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickOnlyLogsAfterInterval(t *testing.T) {
	p := NewProfiler()

	assert.False(t, p.Tick(), "first frame must not log")

	p.RecordTick(2 * time.Millisecond)
	p.RecordTick(5 * time.Millisecond)

	// Force the interval to have elapsed.
	p.lastTime = time.Now().Add(-2 * time.Second)
	assert.True(t, p.Tick())

	// The report consumed the tick samples.
	assert.Zero(t, p.tickSamples)
	assert.Zero(t, p.tickMax)
}
