// ABOUTME: Published engine state snapshots
// ABOUTME: Immutable structs swapped out via atomic pointer for lock-free observation
package engine

// InstanceSnapshot is one song player's state at publication time.
type InstanceSnapshot struct {
	ID              uint32  `json:"id"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration_seconds"`
	PositionSeconds float64 `json:"position_seconds"`
	State           string  `json:"state"`
	Tempo           float64 `json:"tempo"`
	Volume          float64 `json:"volume"`
	Muted           bool    `json:"muted"`
	Soloed          bool    `json:"soloed"`
	RenderFaults    uint64  `json:"render_faults,omitempty"`
}

// Snapshot is a consistent view of the whole engine, published by the
// render goroutine and read by any number of observers. Once published a
// snapshot is never mutated.
type Snapshot struct {
	MasterTempo    float64            `json:"master_tempo"`
	MasterVolume   float64            `json:"master_volume"`
	Transport      string             `json:"transport"`
	SyncMode       string             `json:"sync_mode"`
	Instances      []InstanceSnapshot `json:"instances"`
	RenderedBlocks uint64             `json:"rendered_blocks"`
	RenderFaults   uint64             `json:"render_faults,omitempty"`
}

// Instance returns the snapshot entry for id, or nil if the id was not
// loaded at publication time.
func (s *Snapshot) Instance(id uint32) *InstanceSnapshot {
	for i := range s.Instances {
		if s.Instances[i].ID == id {
			return &s.Instances[i]
		}
	}
	return nil
}
