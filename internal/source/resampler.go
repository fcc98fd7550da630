// ABOUTME: Linear interpolation resampler for sample rate conversion
// ABOUTME: Converts decoded sources to the 48kHz engine rate at load time
package source

// Resampler converts interleaved PCM between sample rates using linear
// interpolation. It runs only at load time, never on the render path.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
}

// NewResampler creates a resampler for the given rates and channel count.
func NewResampler(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// OutputSamplesFor returns the number of output samples produced for the
// given number of input samples.
func (r *Resampler) OutputSamplesFor(inputSamples int) int {
	frames := inputSamples / r.channels
	outFrames := int(float64(frames) * float64(r.outputRate) / float64(r.inputRate))
	return outFrames * r.channels
}

// Resample fills output with interpolated samples drawn from input and
// returns the number of samples written.
func (r *Resampler) Resample(input, output []int32) int {
	inFrames := len(input) / r.channels
	if inFrames < 2 {
		return 0
	}

	outFrames := len(output) / r.channels
	written := 0

	for i := 0; i < outFrames; i++ {
		srcPos := float64(i) * r.ratio
		idx := int(srcPos)
		if idx >= inFrames-1 {
			break
		}
		frac := srcPos - float64(idx)

		for ch := 0; ch < r.channels; ch++ {
			a := float64(input[idx*r.channels+ch])
			b := float64(input[(idx+1)*r.channels+ch])
			output[i*r.channels+ch] = int32(a + (b-a)*frac)
			written++
		}
	}

	return written
}
