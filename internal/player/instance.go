// ABOUTME: Single song player instance
// ABOUTME: Holds transport, tempo, volume, and loop state and renders varispeed blocks
package player

import (
	"github.com/whiteroom-audio/playback-go/internal/audio"
)

// Per-instance tempo bounds. Setters clamp into this range, never reject.
const (
	MinTempo = 0.5
	MaxTempo = 2.0
)

// TransportState is the playback state of one instance.
type TransportState uint8

const (
	Stopped TransportState = iota
	Playing
	Paused
)

// String returns the wire name of the transport state.
func (s TransportState) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Instance is one loaded song player.
//
// All methods are called only from the render goroutine, which applies
// queued commands and renders blocks; the instance therefore carries no
// locking. The control side observes it exclusively through snapshots.
type Instance struct {
	id    uint32
	track *audio.Track

	state  TransportState
	tempo  float64
	volume float64
	muted  bool
	soloed bool

	// position is the read head in source frames; fractional because
	// varispeed advances by tempo per output frame.
	position  float64
	loopStart float64 // frames
	loopEnd   float64 // frames; loop disabled while loopEnd <= loopStart

	// renderFaults counts blocks this instance failed to produce and was
	// replaced with silence.
	renderFaults uint64
}

// New creates an instance around a decoded track.
func New(id uint32, track *audio.Track) *Instance {
	return &Instance{
		id:     id,
		track:  track,
		state:  Stopped,
		tempo:  1.0,
		volume: 1.0,
	}
}

// ID returns the engine-lifetime unique id of this instance.
func (in *Instance) ID() uint32 { return in.id }

// Track returns the loaded track.
func (in *Instance) Track() *audio.Track { return in.track }

// State returns the transport state.
func (in *Instance) State() TransportState { return in.state }

// Tempo returns the clamped tempo multiplier.
func (in *Instance) Tempo() float64 { return in.tempo }

// Volume returns the clamped volume.
func (in *Instance) Volume() float64 { return in.volume }

// Muted reports the mute flag.
func (in *Instance) Muted() bool { return in.muted }

// Soloed reports the solo flag.
func (in *Instance) Soloed() bool { return in.soloed }

// RenderFaults returns the number of silently substituted blocks.
func (in *Instance) RenderFaults() uint64 { return in.renderFaults }

// PositionSeconds returns the playback position in seconds.
func (in *Instance) PositionSeconds() float64 {
	return in.position / float64(audio.SampleRate)
}

// Play starts or resumes playback.
func (in *Instance) Play() {
	if in.state == Stopped {
		in.position = in.startFrame()
	}
	in.state = Playing
}

// Pause pauses playback in place.
func (in *Instance) Pause() {
	if in.state == Playing {
		in.state = Paused
	}
}

// Stop halts playback and rewinds to the loop start (or zero).
func (in *Instance) Stop() {
	in.state = Stopped
	in.position = in.startFrame()
}

// SetTempo sets the tempo multiplier, clamped to [0.5, 2.0].
func (in *Instance) SetTempo(tempo float64) {
	in.tempo = audio.ClampFloat(tempo, MinTempo, MaxTempo)
}

// SetVolume sets the volume, clamped to [0, 1].
func (in *Instance) SetVolume(volume float64) {
	in.volume = audio.ClampFloat(volume, 0, 1)
}

// SetMute sets the mute flag.
func (in *Instance) SetMute(muted bool) { in.muted = muted }

// SetSolo sets the solo flag.
func (in *Instance) SetSolo(soloed bool) { in.soloed = soloed }

// SetLoop sets the loop window in seconds. Invalid ranges are clamped into
// 0 <= start <= end <= duration; a collapsed window disables looping.
func (in *Instance) SetLoop(startSec, endSec float64) {
	duration := in.track.DurationSeconds()
	startSec = audio.ClampFloat(startSec, 0, duration)
	endSec = audio.ClampFloat(endSec, startSec, duration)
	in.loopStart = startSec * float64(audio.SampleRate)
	in.loopEnd = endSec * float64(audio.SampleRate)
}

// Seek moves the read head, clamped to [0, duration].
func (in *Instance) Seek(positionSec float64) {
	positionSec = audio.ClampFloat(positionSec, 0, in.track.DurationSeconds())
	in.position = positionSec * float64(audio.SampleRate)
}

// Render writes one block of volume-scaled samples into dst and advances
// the read head by tempo × block frames. It returns false when the
// instance contributed nothing (not playing, or the track is exhausted).
// dst is not cleared on a false return; callers skip it.
//
// Sample advance is driven purely by rendered frame count, so playback
// timing is immune to wall-clock drift.
func (in *Instance) Render(dst []int32) bool {
	if in.state != Playing || in.track.Frames() == 0 {
		return false
	}

	frames := len(dst) / audio.Channels
	totalFrames := float64(in.track.Frames())
	src := in.track.Samples

	for i := 0; i < frames; i++ {
		if in.looping() && in.position >= in.loopEnd {
			in.position = in.loopStart + (in.position - in.loopEnd)
		}
		if in.position >= totalFrames-1 {
			// End of track: silence the tail of the block and stop.
			for j := i * audio.Channels; j < len(dst); j++ {
				dst[j] = 0
			}
			in.state = Stopped
			in.position = in.startFrame()
			return i > 0
		}

		idx := int(in.position)
		frac := in.position - float64(idx)
		for ch := 0; ch < audio.Channels; ch++ {
			a := float64(src[idx*audio.Channels+ch])
			b := float64(src[(idx+1)*audio.Channels+ch])
			dst[i*audio.Channels+ch] = int32((a + (b-a)*frac) * in.volume)
		}

		in.position += in.tempo
	}

	return true
}

// NoteRenderFault records one silently substituted block.
func (in *Instance) NoteRenderFault() { in.renderFaults++ }

func (in *Instance) looping() bool {
	return in.loopEnd > in.loopStart
}

func (in *Instance) startFrame() float64 {
	if in.looping() {
		return in.loopStart
	}
	return 0
}
