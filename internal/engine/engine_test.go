// ABOUTME: Tests for the multi-song coordination engine
// ABOUTME: Covers sync-mode transitions, master fan-out, registry lifecycle, and the byte stream
package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whiteroom-audio/playback-go/internal/audio"
	"github.com/whiteroom-audio/playback-go/internal/command"
	"github.com/whiteroom-audio/playback-go/internal/player"
)

func makeTrack(seconds float64) *audio.Track {
	frames := int(seconds * audio.SampleRate)
	samples := make([]int32, frames*audio.Channels)
	for i := range samples {
		samples[i] = int32((i % 200) * 1000)
	}
	return &audio.Track{
		Title:   "test track",
		Format:  audio.Format{SampleRate: audio.SampleRate, Channels: audio.Channels},
		Samples: samples,
	}
}

func loadTrack(t *testing.T, e *Engine, seconds float64) uint32 {
	t.Helper()
	id := e.AllocateID()
	ok := e.Enqueue(command.Command{Op: command.OpLoadSong, InstanceID: id, Track: makeTrack(seconds)})
	require.True(t, ok, "load command should fit in the channel")
	return id
}

func enqueue(t *testing.T, e *Engine, cmd command.Command) {
	t.Helper()
	require.True(t, e.Enqueue(cmd))
}

func TestLoadAndUnloadMaintainsRegistry(t *testing.T) {
	e := New(command.DefaultRingSize)

	a := loadTrack(t, e, 2.0)
	b := loadTrack(t, e, 2.0)
	e.Flush()

	snap := e.Snapshot()
	assert.Len(t, snap.Instances, 2)
	assert.NotNil(t, snap.Instance(a))
	assert.NotNil(t, snap.Instance(b))

	enqueue(t, e, command.Command{Op: command.OpUnloadSong, InstanceID: a})
	e.Flush()

	snap = e.Snapshot()
	assert.Len(t, snap.Instances, 1)
	assert.Nil(t, snap.Instance(a))
	assert.NotNil(t, snap.Instance(b))
}

func TestInstanceIDsAreNeverReused(t *testing.T) {
	e := New(command.DefaultRingSize)

	a := loadTrack(t, e, 1.0)
	enqueue(t, e, command.Command{Op: command.OpUnloadSong, InstanceID: a})
	e.Flush()

	b := loadTrack(t, e, 1.0)
	e.Flush()

	assert.NotEqual(t, a, b)
	assert.Greater(t, b, a)
}

func TestLockedModeSnapsAllInstancesToMasterTempo(t *testing.T) {
	e := New(command.DefaultRingSize)
	a := loadTrack(t, e, 2.0)
	b := loadTrack(t, e, 2.0)

	enqueue(t, e, command.Command{Op: command.OpSetTempo, InstanceID: a, Value: 0.8})
	enqueue(t, e, command.Command{Op: command.OpSetTempo, InstanceID: b, Value: 1.6})
	enqueue(t, e, command.Command{Op: command.OpSetSyncMode, Mode: command.SyncLocked})
	e.Flush()

	snap := e.Snapshot()
	assert.InDelta(t, 1.0, snap.Instance(a).Tempo, 1e-9)
	assert.InDelta(t, 1.0, snap.Instance(b).Tempo, 1e-9)

	enqueue(t, e, command.Command{Op: command.OpSetMasterTempo, Value: 1.5})
	e.Flush()

	snap = e.Snapshot()
	assert.InDelta(t, 1.5, snap.MasterTempo, 1e-9)
	assert.InDelta(t, 1.5, snap.Instance(a).Tempo, 1e-9)
	assert.InDelta(t, 1.5, snap.Instance(b).Tempo, 1e-9)
}

func TestRatioModeScalesProportionallyAndClamps(t *testing.T) {
	e := New(command.DefaultRingSize)
	a := loadTrack(t, e, 2.0)
	b := loadTrack(t, e, 2.0)

	// At mode entry: master 1.0, A at 1.0 (ratio 1.0), B at 1.5 (ratio 1.5).
	enqueue(t, e, command.Command{Op: command.OpSetTempo, InstanceID: b, Value: 1.5})
	enqueue(t, e, command.Command{Op: command.OpSetSyncMode, Mode: command.SyncRatio})
	enqueue(t, e, command.Command{Op: command.OpSetMasterTempo, Value: 2.0})
	e.Flush()

	snap := e.Snapshot()
	assert.InDelta(t, 2.0, snap.Instance(a).Tempo, 1e-9, "ratio 1.0 follows master exactly")
	assert.InDelta(t, 2.0, snap.Instance(b).Tempo, 1e-9, "ratio 1.5 target of 3.0 clamps at the instance ceiling")
}

func TestRatioRecapturedAfterDirectTempoChange(t *testing.T) {
	e := New(command.DefaultRingSize)
	a := loadTrack(t, e, 2.0)

	enqueue(t, e, command.Command{Op: command.OpSetSyncMode, Mode: command.SyncRatio})
	enqueue(t, e, command.Command{Op: command.OpSetTempo, InstanceID: a, Value: 0.5})
	enqueue(t, e, command.Command{Op: command.OpSetMasterTempo, Value: 2.0})
	e.Flush()

	// New ratio 0.5 captured at the direct change, then scaled by master 2.0.
	assert.InDelta(t, 1.0, e.Snapshot().Instance(a).Tempo, 1e-9)
}

func TestReturnToIndependentFreezesTempos(t *testing.T) {
	e := New(command.DefaultRingSize)
	a := loadTrack(t, e, 2.0)

	enqueue(t, e, command.Command{Op: command.OpSetSyncMode, Mode: command.SyncLocked})
	enqueue(t, e, command.Command{Op: command.OpSetMasterTempo, Value: 1.5})
	enqueue(t, e, command.Command{Op: command.OpSetSyncMode, Mode: command.SyncIndependent})
	enqueue(t, e, command.Command{Op: command.OpSetMasterTempo, Value: 0.5})
	e.Flush()

	snap := e.Snapshot()
	assert.InDelta(t, 0.5, snap.MasterTempo, 1e-9)
	assert.InDelta(t, 1.5, snap.Instance(a).Tempo, 1e-9, "instance keeps its last applied tempo")
}

func TestMasterTransportFansOutOnlyWhenCoordinated(t *testing.T) {
	e := New(command.DefaultRingSize)
	a := loadTrack(t, e, 2.0)

	enqueue(t, e, command.Command{Op: command.OpMasterPlay})
	e.Flush()

	snap := e.Snapshot()
	assert.Equal(t, player.Playing.String(), snap.Transport)
	assert.Equal(t, player.Stopped.String(), snap.Instance(a).State,
		"independent mode leaves instance transports untouched")

	enqueue(t, e, command.Command{Op: command.OpSetSyncMode, Mode: command.SyncLocked})
	enqueue(t, e, command.Command{Op: command.OpMasterPlay})
	e.Flush()
	assert.Equal(t, player.Playing.String(), e.Snapshot().Instance(a).State)

	enqueue(t, e, command.Command{Op: command.OpMasterStop})
	e.Flush()
	snap = e.Snapshot()
	assert.Equal(t, player.Stopped.String(), snap.Transport)
	assert.Equal(t, player.Stopped.String(), snap.Instance(a).State)
}

func TestSongJoiningCoordinatedSessionStartsInSync(t *testing.T) {
	e := New(command.DefaultRingSize)

	enqueue(t, e, command.Command{Op: command.OpSetSyncMode, Mode: command.SyncLocked})
	enqueue(t, e, command.Command{Op: command.OpSetMasterTempo, Value: 1.25})
	enqueue(t, e, command.Command{Op: command.OpMasterPlay})
	late := loadTrack(t, e, 2.0)
	e.Flush()

	in := e.Snapshot().Instance(late)
	require.NotNil(t, in)
	assert.InDelta(t, 1.25, in.Tempo, 1e-9)
	assert.Equal(t, player.Playing.String(), in.State)
}

func TestMasterTempoAndVolumeClamped(t *testing.T) {
	e := New(command.DefaultRingSize)

	enqueue(t, e, command.Command{Op: command.OpSetMasterTempo, Value: 100})
	enqueue(t, e, command.Command{Op: command.OpSetMasterVolume, Value: -3})
	e.Flush()

	snap := e.Snapshot()
	assert.InDelta(t, MaxMasterTempo, snap.MasterTempo, 1e-9)
	assert.InDelta(t, 0.0, snap.MasterVolume, 1e-9)
}

func TestCommandsForUnknownInstanceAreIgnored(t *testing.T) {
	e := New(command.DefaultRingSize)
	a := loadTrack(t, e, 1.0)

	enqueue(t, e, command.Command{Op: command.OpPlay, InstanceID: 9999})
	enqueue(t, e, command.Command{Op: command.OpSetTempo, InstanceID: 9999, Value: 2.0})
	e.Flush()

	snap := e.Snapshot()
	assert.Len(t, snap.Instances, 1)
	assert.Equal(t, player.Stopped.String(), snap.Instance(a).State)
}

func TestEnqueueReportsSaturation(t *testing.T) {
	e := New(8)

	for i := 0; i < 8; i++ {
		require.True(t, e.Enqueue(command.Command{Op: command.OpMasterPlay}))
	}
	assert.False(t, e.Enqueue(command.Command{Op: command.OpMasterPlay}))

	e.Flush()
	assert.True(t, e.Enqueue(command.Command{Op: command.OpMasterPlay}), "channel drains after a tick")
}

func TestCommandDrainBoundedPerBlock(t *testing.T) {
	e := New(256)
	for i := 0; i < maxCommandsPerTick+5; i++ {
		require.True(t, e.Enqueue(command.Command{Op: command.OpSetMasterVolume, Value: 0.5}))
	}

	dst := make([]int32, audio.BlockSamples)
	e.RenderBlock(dst)
	// Five commands remain queued after the capped drain.
	drained := 0
	for e.Enqueue(command.Command{}) {
		drained++
		if drained > 256 {
			break
		}
	}
	assert.Equal(t, 256-5, drained)
}

func TestReadProducesContinuousPCMStream(t *testing.T) {
	e := New(command.DefaultRingSize)
	a := loadTrack(t, e, 1.0)
	enqueue(t, e, command.Command{Op: command.OpPlay, InstanceID: a})

	// An odd read size forces block-boundary carry-over.
	buf := make([]byte, audio.BlockSamples*2+100)
	n, err := e.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	nonZero := false
	for _, b := range buf {
		if b != 0 {
			nonZero = true
			break
		}
	}
	assert.True(t, nonZero, "playing instance should produce signal")

	n, err = e.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
}

func TestSnapshotPublishedPeriodicallyDuringRender(t *testing.T) {
	e := New(command.DefaultRingSize)
	a := loadTrack(t, e, 2.0)
	enqueue(t, e, command.Command{Op: command.OpPlay, InstanceID: a})

	dst := make([]int32, audio.BlockSamples)
	for i := 0; i < snapshotInterval*2; i++ {
		e.RenderBlock(dst)
	}

	snap := e.Snapshot()
	require.NotNil(t, snap.Instance(a))
	assert.Equal(t, player.Playing.String(), snap.Instance(a).State)
	assert.Greater(t, snap.Instance(a).PositionSeconds, 0.0)
	assert.Equal(t, uint64(snapshotInterval*2), snap.RenderedBlocks)
}

func TestRenderFaultsSurfaceInSnapshot(t *testing.T) {
	e := New(command.DefaultRingSize)
	a := loadTrack(t, e, 2.0)
	b := loadTrack(t, e, 2.0)
	e.Flush()

	e.byID[a].NoteRenderFault()
	e.byID[a].NoteRenderFault()
	e.byID[b].NoteRenderFault()
	e.Flush()

	snap := e.Snapshot()
	require.NotNil(t, snap.Instance(a))
	require.NotNil(t, snap.Instance(b))
	assert.Equal(t, uint64(2), snap.Instance(a).RenderFaults)
	assert.Equal(t, uint64(1), snap.Instance(b).RenderFaults)
	assert.Equal(t, uint64(3), snap.RenderFaults, "aggregate counter sums every instance")
}

func TestUnloadRetiresInstanceFaults(t *testing.T) {
	e := New(command.DefaultRingSize)
	a := loadTrack(t, e, 2.0)
	b := loadTrack(t, e, 2.0)
	e.Flush()

	e.byID[a].NoteRenderFault()
	enqueue(t, e, command.Command{Op: command.OpUnloadSong, InstanceID: a})
	e.Flush()

	snap := e.Snapshot()
	require.NotNil(t, snap.Instance(b))
	assert.Equal(t, uint64(0), snap.RenderFaults, "a retired instance no longer contributes faults")
}
