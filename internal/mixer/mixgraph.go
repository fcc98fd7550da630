// ABOUTME: Master bus mixer for the playback engine
// ABOUTME: Sums instance blocks with solo/mute gating, master volume, and clamping
package mixer

import (
	"github.com/whiteroom-audio/playback-go/internal/audio"
)

// Source is one mixable audio stream. *player.Instance is the production
// implementation; the interface exists so the graph never depends on how
// a stream produces its block.
type Source interface {
	// Render fills dst with one block and reports whether the stream
	// produced audio. It must not retain dst.
	Render(dst []int32) bool
	Muted() bool
	Soloed() bool
	// NoteRenderFault records that rendering this stream failed.
	NoteRenderFault()
}

// MixGraph sums the output of every instance into one master block.
// All buffers are allocated at construction; Mix performs no allocation
// and is safe to call from the render goroutine.
type MixGraph struct {
	scratch []int32 // per-instance render block
	sum     []int64 // wide accumulator, clamped once at the end
}

// New creates a mix graph for fixed-size engine blocks.
func New() *MixGraph {
	return &MixGraph{
		scratch: make([]int32, audio.BlockSamples),
		sum:     make([]int64, audio.BlockSamples),
	}
}

// Audible reports whether an instance contributes to the mix under the
// solo/mute rule: while any instance is soloed, every non-soloed instance
// is silent regardless of its own mute flag.
func Audible(in Source, anySolo bool) bool {
	if anySolo {
		return in.Soloed()
	}
	return !in.Muted()
}

// Mix renders every source and writes the master block into dst.
// masterVolume is applied after summation; the result is clamped to the
// 24-bit sample range. A panic while rendering one source is contained
// to that source: its contribution becomes silence for this block and
// its fault counter is bumped.
func (g *MixGraph) Mix(sources []Source, masterVolume float64, dst []int32) {
	for i := range g.sum {
		g.sum[i] = 0
	}

	anySolo := false
	for _, in := range sources {
		if in.Soloed() {
			anySolo = true
			break
		}
	}

	for _, in := range sources {
		g.mixOne(in, anySolo)
	}

	for i := range dst {
		dst[i] = audio.Clamp24(int64(float64(g.sum[i]) * masterVolume))
	}
}

// mixOne renders one source and accumulates it. Gated sources still
// render (their position advances) but are not summed.
func (g *MixGraph) mixOne(in Source, anySolo bool) {
	defer func() {
		if r := recover(); r != nil {
			in.NoteRenderFault()
		}
	}()

	if !in.Render(g.scratch) {
		return
	}
	if !Audible(in, anySolo) {
		return
	}
	for i, s := range g.scratch {
		g.sum[i] += int64(s)
	}
}
