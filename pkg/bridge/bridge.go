// ABOUTME: Handle-based control surface over the playback engine
// ABOUTME: Opaque handles, closed error taxonomy, panic containment at the boundary
package bridge

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/whiteroom-audio/playback-go/internal/command"
	"github.com/whiteroom-audio/playback-go/internal/device"
	"github.com/whiteroom-audio/playback-go/internal/engine"
	"github.com/whiteroom-audio/playback-go/internal/source"
	"github.com/whiteroom-audio/playback-go/internal/version"
)

// Handle identifies one engine session across the bridge. Zero is never
// a valid handle.
type Handle uint64

// InstanceID identifies one loaded song within a session.
type InstanceID = uint32

// Global session registry. The map is the only shared structure; each
// session's engine has its own single-producer channel, so bridge calls
// for one handle must come from one goroutine at a time (matching the
// C-ABI contract this surface models).
var (
	sessionsMu sync.RWMutex
	sessions   = make(map[Handle]*session)
	nextHandle atomic.Uint64
)

type session struct {
	engine *engine.Engine
	dev    device.Device
}

// Version reports the engine version string.
func Version() string {
	return version.String()
}

// Create builds a new engine session backed by the system audio device
// and returns its handle. The device is not started until AudioStart.
func Create() (Handle, error) {
	return CreateWithDevice(device.NewOto())
}

// CreateWithDevice builds a session on a caller-supplied device. Used by
// tests and offline rendering.
func CreateWithDevice(dev device.Device) (h Handle, err error) {
	defer recoverToErr(&err)

	if dev == nil {
		return 0, fmt.Errorf("%w: nil device", ErrInvalidArgument)
	}

	h = Handle(nextHandle.Add(1))
	s := &session{
		engine: engine.New(command.DefaultRingSize),
		dev:    dev,
	}

	sessionsMu.Lock()
	sessions[h] = s
	sessionsMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"handle":  h,
		"version": version.String(),
	}).Info("Engine session created")

	return h, nil
}

// Destroy stops the device and releases the session. Destroying an
// unknown or already-destroyed handle reports ErrInvalidHandle and never
// faults.
func Destroy(h Handle) (err error) {
	defer recoverToErr(&err)

	sessionsMu.Lock()
	s, ok := sessions[h]
	delete(sessions, h)
	sessionsMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	if stopErr := s.dev.Stop(); stopErr != nil {
		logrus.WithError(stopErr).WithField("handle", h).
			Warn("Device stop during destroy reported error")
	}

	logrus.WithField("handle", h).Info("Engine session destroyed")
	return nil
}

// AudioStart opens the output device and begins pulling rendered audio.
func AudioStart(h Handle) (err error) {
	defer recoverToErr(&err)

	s, err := lookup(h)
	if err != nil {
		return err
	}
	if devErr := s.dev.Start(s.engine); devErr != nil {
		return fmt.Errorf("%w: %v", ErrDeviceError, devErr)
	}
	return nil
}

// AudioStop stops the output device. Queued commands stay queued and are
// drained when audio restarts.
func AudioStop(h Handle) (err error) {
	defer recoverToErr(&err)

	s, err := lookup(h)
	if err != nil {
		return err
	}
	if devErr := s.dev.Stop(); devErr != nil {
		return fmt.Errorf("%w: %v", ErrDeviceError, devErr)
	}
	return nil
}

// LoadSong decodes the source named by descriptor and registers it with
// the engine, returning the new instance id. Descriptors are file paths
// (mp3, flac, wav, opus/ogg) or "tone:<freq>[:seconds]" generators.
func LoadSong(h Handle, descriptor string) (id InstanceID, err error) {
	defer recoverToErr(&err)

	s, err := lookup(h)
	if err != nil {
		return 0, err
	}

	track, loadErr := source.Load(descriptor)
	if loadErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, loadErr)
	}

	id = s.engine.AllocateID()
	if !s.engine.Enqueue(command.Command{Op: command.OpLoadSong, InstanceID: id, Track: track}) {
		return 0, ErrChannelFull
	}

	logrus.WithFields(logrus.Fields{
		"handle":   h,
		"instance": id,
		"title":    track.Title,
		"duration": track.DurationSeconds(),
	}).Info("Song loaded")

	return id, nil
}

// UnloadSong removes a song instance. The id is retired permanently.
func UnloadSong(h Handle, id InstanceID) error {
	return enqueue(h, command.Command{Op: command.OpUnloadSong, InstanceID: id})
}

// Play starts one instance's transport.
func Play(h Handle, id InstanceID) error {
	return enqueue(h, command.Command{Op: command.OpPlay, InstanceID: id})
}

// Pause pauses one instance, keeping its position.
func Pause(h Handle, id InstanceID) error {
	return enqueue(h, command.Command{Op: command.OpPause, InstanceID: id})
}

// Stop stops one instance and rewinds it.
func Stop(h Handle, id InstanceID) error {
	return enqueue(h, command.Command{Op: command.OpStop, InstanceID: id})
}

// SetTempo sets one instance's playback rate. Out-of-range values clamp.
func SetTempo(h Handle, id InstanceID, tempo float64) error {
	return enqueue(h, command.Command{Op: command.OpSetTempo, InstanceID: id, Value: tempo})
}

// SetVolume sets one instance's gain in [0,1]. Out-of-range values clamp.
func SetVolume(h Handle, id InstanceID, volume float64) error {
	return enqueue(h, command.Command{Op: command.OpSetVolume, InstanceID: id, Value: volume})
}

// SetMute mutes or unmutes one instance.
func SetMute(h Handle, id InstanceID, muted bool) error {
	return enqueue(h, command.Command{Op: command.OpSetMute, InstanceID: id, Flag: muted})
}

// SetSolo solos or unsolos one instance. Any soloed instance silences
// every non-soloed one.
func SetSolo(h Handle, id InstanceID, soloed bool) error {
	return enqueue(h, command.Command{Op: command.OpSetSolo, InstanceID: id, Flag: soloed})
}

// SetLoop sets one instance's loop window in seconds. The window is
// clamped to the track; a collapsed window disables looping.
func SetLoop(h Handle, id InstanceID, startSec, endSec float64) error {
	return enqueue(h, command.Command{
		Op: command.OpSetLoop, InstanceID: id, LoopStart: startSec, LoopEnd: endSec,
	})
}

// Seek moves one instance's position, clamped to the track duration.
func Seek(h Handle, id InstanceID, positionSec float64) error {
	return enqueue(h, command.Command{Op: command.OpSeek, InstanceID: id, Value: positionSec})
}

// MasterPlay starts the session transport. In locked and ratio sync
// modes it starts every instance.
func MasterPlay(h Handle) error {
	return enqueue(h, command.Command{Op: command.OpMasterPlay})
}

// MasterPause pauses the session transport.
func MasterPause(h Handle) error {
	return enqueue(h, command.Command{Op: command.OpMasterPause})
}

// MasterStop stops the session transport.
func MasterStop(h Handle) error {
	return enqueue(h, command.Command{Op: command.OpMasterStop})
}

// SetSyncMode switches the coordination policy: "independent", "locked",
// or "ratio".
func SetSyncMode(h Handle, mode string) error {
	m, ok := command.ParseSyncMode(mode)
	if !ok {
		return fmt.Errorf("%w: unknown sync mode %q", ErrInvalidArgument, mode)
	}
	return enqueue(h, command.Command{Op: command.OpSetSyncMode, Mode: m})
}

// SetMasterTempo sets the session tempo. Out-of-range values clamp.
func SetMasterTempo(h Handle, tempo float64) error {
	return enqueue(h, command.Command{Op: command.OpSetMasterTempo, Value: tempo})
}

// SetMasterVolume sets the master bus gain in [0,1].
func SetMasterVolume(h Handle, volume float64) error {
	return enqueue(h, command.Command{Op: command.OpSetMasterVolume, Value: volume})
}

// StateSnapshot returns the latest published engine state. The snapshot
// is immutable and safe to hold.
func StateSnapshot(h Handle) (snap *engine.Snapshot, err error) {
	defer recoverToErr(&err)

	s, err := lookup(h)
	if err != nil {
		return nil, err
	}
	return s.engine.Snapshot(), nil
}

// SerializeState returns the latest engine state as a JSON document.
func SerializeState(h Handle) (state string, err error) {
	defer recoverToErr(&err)

	s, err := lookup(h)
	if err != nil {
		return "", err
	}
	data, jsonErr := json.MarshalIndent(s.engine.Snapshot(), "", "  ")
	if jsonErr != nil {
		return "", fmt.Errorf("%w: %v", ErrInternal, jsonErr)
	}
	return string(data), nil
}

func lookup(h Handle) (*session, error) {
	sessionsMu.RLock()
	s, ok := sessions[h]
	sessionsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	return s, nil
}

// enqueue pushes one command for the handle. Success means "enqueued":
// the effect is observed through later snapshots.
func enqueue(h Handle, cmd command.Command) (err error) {
	defer recoverToErr(&err)

	s, err := lookup(h)
	if err != nil {
		return err
	}
	if !s.engine.Enqueue(cmd) {
		return ErrChannelFull
	}
	return nil
}

// recoverToErr converts a panic inside a bridge call into ErrInternal.
// The boundary never propagates faults to the caller.
func recoverToErr(err *error) {
	if r := recover(); r != nil {
		logrus.WithField("panic", r).Error("Recovered panic at bridge boundary")
		*err = fmt.Errorf("%w: recovered panic: %v", ErrInternal, r)
	}
}
