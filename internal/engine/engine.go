// ABOUTME: Multi-song coordination engine
// ABOUTME: Owns the instance registry, sync-mode logic, master state, and the render loop
package engine

import (
	"sync/atomic"

	"github.com/whiteroom-audio/playback-go/internal/audio"
	"github.com/whiteroom-audio/playback-go/internal/command"
	"github.com/whiteroom-audio/playback-go/internal/mixer"
	"github.com/whiteroom-audio/playback-go/internal/player"
)

// Master tempo bounds, wider than the per-instance range.
const (
	MinMasterTempo = 0.25
	MaxMasterTempo = 4.0
)

// maxCommandsPerTick caps the number of commands drained per render block
// so a flooded channel cannot stretch the callback.
const maxCommandsPerTick = 32

// snapshotInterval is the number of rendered blocks between snapshot
// publications (8 blocks is ~43ms at the engine block size, comfortably
// ahead of any UI poll rate).
const snapshotInterval = 8

// Engine coordinates N song player instances behind a command channel.
//
// The control side talks to the engine only through Enqueue and Snapshot.
// The registry, instance state, and master state are owned by the render
// goroutine, which drains the channel at the top of every block. That
// single-owner rule is what makes the engine lock-free.
type Engine struct {
	ring *command.Ring
	mix  *mixer.MixGraph

	// Render-goroutine state. Never touched by the control side.
	instances []*player.Instance
	sources   []mixer.Source // mirrors instances, in the same order
	byID      map[uint32]*player.Instance

	masterTempo  float64
	masterVolume float64
	transport    player.TransportState
	syncMode     command.SyncMode

	// ratios holds each instance's tempo/master ratio captured when ratio
	// mode was entered (or when the instance joined during ratio mode).
	ratios map[uint32]float64

	blocks uint64 // rendered block count

	// nextID is advanced on the control side so LoadSong can hand out the
	// id before the command is ever dequeued. Ids are engine-lifetime
	// unique and never reused.
	nextID atomic.Uint32

	snapshot atomic.Pointer[Snapshot]

	// Device byte stream state for io.Reader rendering.
	block  []int32
	pcm    []byte
	pcmOff int
}

// New creates an engine with the given command channel capacity.
func New(ringSize int) *Engine {
	e := &Engine{
		ring:         command.NewRing(ringSize),
		mix:          mixer.New(),
		byID:         make(map[uint32]*player.Instance),
		ratios:       make(map[uint32]float64),
		masterTempo:  1.0,
		masterVolume: 1.0,
		transport:    player.Stopped,
		syncMode:     command.SyncIndependent,
		block:        make([]int32, audio.BlockSamples),
		pcm:          make([]byte, audio.BlockSamples*2),
		pcmOff:       audio.BlockSamples * 2,
	}
	e.snapshot.Store(&Snapshot{
		MasterTempo:  1.0,
		MasterVolume: 1.0,
		Transport:    player.Stopped.String(),
		SyncMode:     command.SyncIndependent.String(),
		Instances:    []InstanceSnapshot{},
	})
	return e
}

// AllocateID reserves the next instance id. Called on the control side
// before enqueueing a LoadSong command so the caller learns the id
// synchronously.
func (e *Engine) AllocateID() uint32 {
	return e.nextID.Add(1)
}

// Enqueue attempts to push one command onto the channel. It returns false
// when the channel is saturated; the caller retries on its own schedule.
func (e *Engine) Enqueue(cmd command.Command) bool {
	return e.ring.TryPush(cmd)
}

// Snapshot returns the most recently published state snapshot. The
// returned value is immutable; callers may hold it indefinitely.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// RenderBlock drains queued commands and renders one mixed master block
// into dst. It must be called only from the render goroutine.
func (e *Engine) RenderBlock(dst []int32) {
	for i := 0; i < maxCommandsPerTick; i++ {
		cmd, ok := e.ring.TryPop()
		if !ok {
			break
		}
		e.apply(cmd)
	}

	e.mix.Mix(e.sources, e.masterVolume, dst)

	e.blocks++
	if e.blocks%snapshotInterval == 0 {
		e.publishSnapshot()
	}
}

// apply executes one command on the render goroutine.
func (e *Engine) apply(cmd command.Command) {
	switch cmd.Op {
	case command.OpLoadSong:
		e.loadSong(cmd.InstanceID, cmd.Track)
	case command.OpUnloadSong:
		e.unloadSong(cmd.InstanceID)
	case command.OpMasterPlay:
		e.masterPlay()
	case command.OpMasterPause:
		e.masterPause()
	case command.OpMasterStop:
		e.masterStop()
	case command.OpSetMasterTempo:
		e.setMasterTempo(cmd.Value)
	case command.OpSetMasterVolume:
		e.masterVolume = audio.ClampFloat(cmd.Value, 0, 1)
	case command.OpSetSyncMode:
		e.setSyncMode(cmd.Mode)
	default:
		e.applyInstance(cmd)
	}
}

// applyInstance executes a per-instance command. An unknown id is a
// no-op: the control side already reported it from the registry view, and
// a race against a concurrent unload must never be fatal.
func (e *Engine) applyInstance(cmd command.Command) {
	in, ok := e.byID[cmd.InstanceID]
	if !ok {
		return
	}

	switch cmd.Op {
	case command.OpPlay:
		in.Play()
	case command.OpPause:
		in.Pause()
	case command.OpStop:
		in.Stop()
	case command.OpSeek:
		in.Seek(cmd.Value)
	case command.OpSetTempo:
		in.SetTempo(cmd.Value)
		if e.syncMode == command.SyncRatio && e.masterTempo != 0 {
			e.ratios[cmd.InstanceID] = in.Tempo() / e.masterTempo
		}
	case command.OpSetVolume:
		in.SetVolume(cmd.Value)
	case command.OpSetMute:
		in.SetMute(cmd.Flag)
	case command.OpSetSolo:
		in.SetSolo(cmd.Flag)
	case command.OpSetLoop:
		in.SetLoop(cmd.LoopStart, cmd.LoopEnd)
	}
}

func (e *Engine) loadSong(id uint32, track *audio.Track) {
	if track == nil || id == 0 {
		return
	}
	in := player.New(id, track)

	// A song joining a coordinated session starts at the master-derived
	// tempo so it never launches out of sync.
	switch e.syncMode {
	case command.SyncLocked:
		in.SetTempo(e.masterTempo)
	case command.SyncRatio:
		in.SetTempo(e.masterTempo)
		e.ratios[id] = 1.0
	}
	if e.syncMode != command.SyncIndependent && e.transport == player.Playing {
		in.Play()
	}

	e.instances = append(e.instances, in)
	e.sources = append(e.sources, in)
	e.byID[id] = in
}

func (e *Engine) unloadSong(id uint32) {
	in, ok := e.byID[id]
	if !ok {
		return
	}
	delete(e.byID, id)
	delete(e.ratios, id)
	for i, candidate := range e.instances {
		if candidate == in {
			e.instances = append(e.instances[:i], e.instances[i+1:]...)
			e.sources = append(e.sources[:i], e.sources[i+1:]...)
			break
		}
	}
}

// masterPlay starts the session. In locked and ratio modes the master
// drives every instance transport; independent instances keep their own.
func (e *Engine) masterPlay() {
	e.transport = player.Playing
	if e.syncMode == command.SyncIndependent {
		return
	}
	for _, in := range e.instances {
		in.Play()
	}
}

func (e *Engine) masterPause() {
	e.transport = player.Paused
	if e.syncMode == command.SyncIndependent {
		return
	}
	for _, in := range e.instances {
		in.Pause()
	}
}

func (e *Engine) masterStop() {
	e.transport = player.Stopped
	if e.syncMode == command.SyncIndependent {
		return
	}
	for _, in := range e.instances {
		in.Stop()
	}
}

// setMasterTempo clamps and stores the master tempo, then propagates it
// according to the sync mode. Independent mode changes only the displayed
// master value.
func (e *Engine) setMasterTempo(tempo float64) {
	e.masterTempo = audio.ClampFloat(tempo, MinMasterTempo, MaxMasterTempo)

	switch e.syncMode {
	case command.SyncLocked:
		for _, in := range e.instances {
			in.SetTempo(e.masterTempo)
		}
	case command.SyncRatio:
		for _, in := range e.instances {
			in.SetTempo(e.ratios[in.ID()] * e.masterTempo)
		}
	}
}

// setSyncMode switches the coordination policy.
//
// Entering locked snaps every instance to the master tempo immediately;
// the audible discontinuity is accepted. Entering ratio captures each
// instance's tempo relative to the master at this moment. Returning to
// independent leaves every instance at its last applied tempo.
func (e *Engine) setSyncMode(mode command.SyncMode) {
	if mode == e.syncMode {
		return
	}

	switch mode {
	case command.SyncLocked:
		for _, in := range e.instances {
			in.SetTempo(e.masterTempo)
		}
	case command.SyncRatio:
		for _, in := range e.instances {
			ratio := 1.0
			if e.masterTempo != 0 {
				ratio = in.Tempo() / e.masterTempo
			}
			e.ratios[in.ID()] = ratio
		}
	}
	if mode != command.SyncRatio {
		clear(e.ratios)
	}

	e.syncMode = mode
}

// publishSnapshot builds and atomically publishes a fresh snapshot.
// Publication is the one place the render goroutine allocates; it is
// bounded (registry-sized, every snapshotInterval blocks) and keeps every
// published snapshot immutable for concurrent readers.
func (e *Engine) publishSnapshot() {
	totalFaults := uint64(0)
	instances := make([]InstanceSnapshot, 0, len(e.instances))
	for _, in := range e.instances {
		totalFaults += in.RenderFaults()
		instances = append(instances, InstanceSnapshot{
			ID:              in.ID(),
			Title:           in.Track().Title,
			DurationSeconds: in.Track().DurationSeconds(),
			PositionSeconds: in.PositionSeconds(),
			State:           in.State().String(),
			Tempo:           in.Tempo(),
			Volume:          in.Volume(),
			Muted:           in.Muted(),
			Soloed:          in.Soloed(),
			RenderFaults:    in.RenderFaults(),
		})
	}

	e.snapshot.Store(&Snapshot{
		MasterTempo:    e.masterTempo,
		MasterVolume:   e.masterVolume,
		Transport:      e.transport.String(),
		SyncMode:       e.syncMode.String(),
		Instances:      instances,
		RenderedBlocks: e.blocks,
		RenderFaults:   totalFaults,
	})
}

// Read renders audio as a little-endian 16-bit PCM byte stream. It is the
// device pull interface: the audio device's reader goroutine calls Read,
// which drives RenderBlock in whole-block steps.
func (e *Engine) Read(p []byte) (int, error) {
	written := 0

	for written < len(p) {
		if e.pcmOff == len(e.pcm) {
			e.RenderBlock(e.block)
			for i, s := range e.block {
				v := uint16(audio.SampleToInt16(s))
				e.pcm[i*2] = byte(v)
				e.pcm[i*2+1] = byte(v >> 8)
			}
			e.pcmOff = 0
		}

		n := copy(p[written:], e.pcm[e.pcmOff:])
		written += n
		e.pcmOff += n
	}

	return written, nil
}

// Flush drains and applies every queued command and publishes a fresh
// snapshot without rendering audio. Only valid where the caller also
// owns the render side, such as offline control or before the device
// starts.
func (e *Engine) Flush() {
	for {
		cmd, ok := e.ring.TryPop()
		if !ok {
			break
		}
		e.apply(cmd)
	}
	e.publishSnapshot()
}
