// ABOUTME: Control message definitions for the command channel
// ABOUTME: Tagged command values moved from the control side to the render side
package command

import "github.com/whiteroom-audio/playback-go/internal/audio"

// Op identifies the kind of a Command. The set is closed; the render loop
// switches on it without any string dispatch.
type Op uint8

const (
	OpNone Op = iota
	OpPlay
	OpPause
	OpStop
	OpSeek
	OpSetTempo
	OpSetVolume
	OpSetMute
	OpSetSolo
	OpSetLoop
	OpLoadSong
	OpUnloadSong
	OpMasterPlay
	OpMasterPause
	OpMasterStop
	OpSetMasterTempo
	OpSetMasterVolume
	OpSetSyncMode
)

// SyncMode selects how master tempo changes propagate to instances.
type SyncMode uint8

const (
	SyncIndependent SyncMode = iota
	SyncLocked
	SyncRatio
)

// String returns the wire name of the sync mode.
func (m SyncMode) String() string {
	switch m {
	case SyncLocked:
		return "locked"
	case SyncRatio:
		return "ratio"
	default:
		return "independent"
	}
}

// ParseSyncMode maps a wire name back to a SyncMode.
func ParseSyncMode(s string) (SyncMode, bool) {
	switch s {
	case "independent":
		return SyncIndependent, true
	case "locked":
		return SyncLocked, true
	case "ratio":
		return SyncRatio, true
	}
	return SyncIndependent, false
}

// Command is one control message. Commands are plain values: the only
// pointer they may carry is a Track decoded before enqueue, which stays
// immutable for the engine lifetime, so popping a command never implies
// ownership transfer or frees.
type Command struct {
	Op         Op
	InstanceID uint32
	Value      float64 // tempo, volume, or seek position depending on Op
	Flag       bool    // mute/solo state
	LoopStart  float64
	LoopEnd    float64
	Mode       SyncMode
	Track      *audio.Track // OpLoadSong only
}
