// ABOUTME: Tests for the master bus mixer
// ABOUTME: Covers solo/mute gating, master volume, summation, and clamping
package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whiteroom-audio/playback-go/internal/audio"
	"github.com/whiteroom-audio/playback-go/internal/player"
	"github.com/whiteroom-audio/playback-go/internal/source"
)

func playingInstance(t *testing.T, id uint32) *player.Instance {
	t.Helper()
	in := player.New(id, source.NewToneTrack(440, 1))
	in.Play()
	return in
}

func isSilent(block []int32) bool {
	for _, s := range block {
		if s != 0 {
			return false
		}
	}
	return true
}

func TestMixSingleInstance(t *testing.T) {
	g := New()
	in := playingInstance(t, 1)

	dst := make([]int32, audio.BlockSamples)
	g.Mix([]Source{in}, 1.0, dst)
	assert.False(t, isSilent(dst))
}

func TestAudibleRule(t *testing.T) {
	tests := []struct {
		name    string
		muted   bool
		soloed  bool
		anySolo bool
		want    bool
	}{
		{name: "plain_instance", want: true},
		{name: "muted_instance", muted: true, want: false},
		{name: "non_solo_while_any_solo", anySolo: true, want: false},
		{name: "soloed_instance", soloed: true, anySolo: true, want: true},
		{name: "soloed_and_muted", muted: true, soloed: true, anySolo: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := player.New(1, source.NewToneTrack(440, 1))
			in.SetMute(tt.muted)
			in.SetSolo(tt.soloed)
			assert.Equal(t, tt.want, Audible(in, tt.anySolo))
		})
	}
}

func TestSoloSilencesNonSoloedRegardlessOfMute(t *testing.T) {
	g := New()
	a := playingInstance(t, 1)
	b := playingInstance(t, 2)
	b.SetSolo(true)
	a.SetMute(false) // unmuted, still silenced by b's solo

	// Mix only a alongside the soloed b: capture b alone first.
	dstBoth := make([]int32, audio.BlockSamples)
	g.Mix([]Source{a, b}, 1.0, dstBoth)

	soloOnly := New()
	b2 := playingInstance(t, 3)
	b2.SetSolo(true)
	dstSolo := make([]int32, audio.BlockSamples)
	soloOnly.Mix([]Source{b2}, 1.0, dstSolo)

	// a is gated out, so the pair mix equals the solo-only mix.
	assert.Equal(t, dstSolo, dstBoth)
}

func TestMutedInstanceIsSilent(t *testing.T) {
	g := New()
	in := playingInstance(t, 1)
	in.SetMute(true)

	dst := make([]int32, audio.BlockSamples)
	g.Mix([]Source{in}, 1.0, dst)
	assert.True(t, isSilent(dst))
}

func TestMasterVolumeScalesMix(t *testing.T) {
	full := New()
	a := playingInstance(t, 1)
	dstFull := make([]int32, audio.BlockSamples)
	full.Mix([]Source{a}, 1.0, dstFull)

	half := New()
	b := playingInstance(t, 2)
	dstHalf := make([]int32, audio.BlockSamples)
	half.Mix([]Source{b}, 0.5, dstHalf)

	for i := range dstFull {
		assert.InDelta(t, float64(dstFull[i])/2, float64(dstHalf[i]), 2)
	}
}

func TestMixClampsToSampleRange(t *testing.T) {
	g := New()

	// Many identical full-volume tones must clip, not wrap.
	var instances []Source
	for i := 0; i < 8; i++ {
		instances = append(instances, playingInstance(t, uint32(i)))
	}

	dst := make([]int32, audio.BlockSamples)
	g.Mix(instances, 1.0, dst)

	for _, s := range dst {
		require.LessOrEqual(t, s, int32(audio.Max24Bit))
		require.GreaterOrEqual(t, s, int32(audio.Min24Bit))
	}
}

func TestGatedInstanceStillAdvances(t *testing.T) {
	g := New()
	in := playingInstance(t, 1)
	in.SetMute(true)

	dst := make([]int32, audio.BlockSamples)
	g.Mix([]Source{in}, 1.0, dst)
	assert.Greater(t, in.PositionSeconds(), 0.0, "muted instance keeps its transport running")
}

// faultingSource panics on every render, standing in for a stream whose
// decode state has been corrupted.
type faultingSource struct {
	faults uint64
}

func (f *faultingSource) Render(dst []int32) bool {
	panic("corrupted stream")
}

func (f *faultingSource) Muted() bool      { return false }
func (f *faultingSource) Soloed() bool     { return false }
func (f *faultingSource) NoteRenderFault() { f.faults++ }

func TestFaultingSourceIsContained(t *testing.T) {
	healthy := playingInstance(t, 1)
	bad := &faultingSource{}

	g := New()
	dst := make([]int32, audio.BlockSamples)
	require.NotPanics(t, func() {
		g.Mix([]Source{bad, healthy}, 1.0, dst)
	})

	// The faulting source contributes silence, so the mix equals a
	// healthy-only mix of the same tone.
	ref := New()
	want := make([]int32, audio.BlockSamples)
	ref.Mix([]Source{playingInstance(t, 2)}, 1.0, want)

	assert.Equal(t, want, dst)
	assert.Equal(t, uint64(1), bad.faults)
}

func TestEveryFaultBumpsTheCounter(t *testing.T) {
	g := New()
	bad := &faultingSource{}
	dst := make([]int32, audio.BlockSamples)

	for i := 0; i < 3; i++ {
		g.Mix([]Source{bad}, 1.0, dst)
	}

	assert.True(t, isSilent(dst))
	assert.Equal(t, uint64(3), bad.faults)
}

func TestEmptyMixIsSilent(t *testing.T) {
	g := New()
	dst := make([]int32, audio.BlockSamples)
	dst[0] = 12345 // stale data must be overwritten
	g.Mix(nil, 1.0, dst)
	assert.True(t, isSilent(dst))
}
