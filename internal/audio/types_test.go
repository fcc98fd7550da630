// ABOUTME: Tests for audio sample conversion helpers
// ABOUTME: Verifies 16/24-bit conversion, clamping, and track accounting
package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleConversionRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		sample int16
	}{
		{name: "zero", sample: 0},
		{name: "positive", sample: 12345},
		{name: "negative", sample: -12345},
		{name: "max", sample: 32767},
		{name: "min", sample: -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wide := SampleFromInt16(tt.sample)
			assert.Equal(t, tt.sample, SampleToInt16(wide))
		})
	}
}

func TestClamp24(t *testing.T) {
	assert.Equal(t, int32(Max24Bit), Clamp24(int64(Max24Bit)+1000))
	assert.Equal(t, int32(Min24Bit), Clamp24(int64(Min24Bit)-1000))
	assert.Equal(t, int32(42), Clamp24(42))
}

func TestClampFloat(t *testing.T) {
	assert.Equal(t, 0.5, ClampFloat(0.1, 0.5, 2.0))
	assert.Equal(t, 2.0, ClampFloat(9.9, 0.5, 2.0))
	assert.Equal(t, 1.25, ClampFloat(1.25, 0.5, 2.0))
}

func TestTrackAccounting(t *testing.T) {
	track := &Track{Samples: make([]int32, SampleRate*Channels)} // one second
	assert.Equal(t, SampleRate, track.Frames())
	assert.Equal(t, 1.0, track.DurationSeconds())

	var nilTrack *Track
	assert.Equal(t, 0, nilTrack.Frames())
}
