// ABOUTME: Control protocol message type definitions
// ABOUTME: Defines the JSON envelope and payloads exchanged with control clients
package protocol

import (
	"encoding/json"
	"fmt"
)

// Protocol message types.
const (
	TypeClientHello = "client/hello"
	TypeServerHello = "server/hello"
	TypeCommand     = "engine/command"
	TypeResult      = "engine/result"
	TypeState       = "engine/state"
)

// ProtocolVersion is bumped on incompatible wire changes.
const ProtocolVersion = 1

// Command actions accepted over the wire.
const (
	ActionLoadSong        = "load_song"
	ActionUnloadSong      = "unload_song"
	ActionPlay            = "play"
	ActionPause           = "pause"
	ActionStop            = "stop"
	ActionSeek            = "seek"
	ActionSetTempo        = "set_tempo"
	ActionSetVolume       = "set_volume"
	ActionSetMute         = "set_mute"
	ActionSetSolo         = "set_solo"
	ActionSetLoop         = "set_loop"
	ActionMasterPlay      = "master_play"
	ActionMasterPause     = "master_pause"
	ActionMasterStop      = "master_stop"
	ActionSetSyncMode     = "set_sync_mode"
	ActionSetMasterTempo  = "set_master_tempo"
	ActionSetMasterVolume = "set_master_volume"
	ActionAudioStart      = "audio_start"
	ActionAudioStop       = "audio_stop"
	ActionGetState        = "get_state"
)

// Message is the top-level wrapper for all protocol messages.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ClientHello is sent by clients to initiate the handshake.
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello is the server's response to client/hello.
type ServerHello struct {
	ServerID      string `json:"server_id"`
	Name          string `json:"name"`
	Version       int    `json:"version"`
	EngineVersion string `json:"engine_version"`
}

// CommandRequest asks the server to apply one engine operation. Fields
// beyond Action are interpreted per action; unused fields are ignored.
type CommandRequest struct {
	RequestID  string  `json:"request_id,omitempty"`
	Action     string  `json:"action"`
	InstanceID uint32  `json:"instance_id,omitempty"`
	Value      float64 `json:"value,omitempty"`
	Flag       bool    `json:"flag,omitempty"`
	LoopStart  float64 `json:"loop_start,omitempty"`
	LoopEnd    float64 `json:"loop_end,omitempty"`
	Mode       string  `json:"mode,omitempty"`
	Source     string  `json:"source,omitempty"`
}

// CommandResult reports the outcome of one CommandRequest. Code is the
// bridge result code; InstanceID is set for load_song.
type CommandResult struct {
	RequestID  string `json:"request_id,omitempty"`
	Action     string `json:"action"`
	Code       int32  `json:"code"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	InstanceID uint32 `json:"instance_id,omitempty"`
}

// Decode unmarshals the wrapped payload into out. The envelope decodes
// payloads as generic maps; handlers re-decode into the concrete type.
func (m *Message) Decode(out interface{}) error {
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("failed to re-encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Parse decodes a raw wire message into its envelope.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message missing type")
	}
	return &msg, nil
}
