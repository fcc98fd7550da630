// ABOUTME: Audio type definitions shared across the engine
// ABOUTME: Defines the engine PCM format, tracks, and sample conversion helpers
package audio

const (
	// Engine-wide render format. Sources at other rates are resampled at load.
	SampleRate = 48000
	Channels   = 2

	// Samples are stored as int32 in 24-bit range so 16-bit and 24-bit
	// sources share one pipeline.
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23

	// BlockFrames is the number of frames rendered per engine tick
	// (256 frames at 48kHz is ~5.3ms).
	BlockFrames = 256

	// BlockSamples is the interleaved sample count of one render block.
	BlockSamples = BlockFrames * Channels
)

// Format describes decoded audio data
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Track is a fully decoded song held in memory for the engine lifetime.
// The sample slice is never mutated or reallocated after load, so the
// render goroutine may read it without synchronization.
type Track struct {
	Title   string
	Artist  string
	Album   string
	Format  Format
	Samples []int32 // interleaved stereo, 24-bit range
}

// Frames returns the number of sample frames in the track.
func (t *Track) Frames() int {
	if t == nil {
		return 0
	}
	return len(t.Samples) / Channels
}

// DurationSeconds returns the track length in seconds at the engine rate.
func (t *Track) DurationSeconds() float64 {
	return float64(t.Frames()) / float64(SampleRate)
}

// SampleToInt16 converts a 24-bit range sample to int16 for device output.
func SampleToInt16(sample int32) int16 {
	return int16(sample >> 8)
}

// SampleFromInt16 converts an int16 sample into the 24-bit range.
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// Clamp24 clamps a mixed sample back into the 24-bit range.
func Clamp24(sample int64) int32 {
	if sample > Max24Bit {
		return Max24Bit
	}
	if sample < Min24Bit {
		return Min24Bit
	}
	return int32(sample)
}

// ClampFloat clamps x into [lo, hi]. Out-of-range control values are
// clamped rather than rejected throughout the engine.
func ClampFloat(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
