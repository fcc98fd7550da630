// ABOUTME: Version information for the playback engine
// ABOUTME: Single source of truth reported by the bridge and the control protocol
package version

import "fmt"

const (
	Major = 0
	Minor = 3
	Patch = 0
)

// String returns the semantic version, e.g. "0.3.0".
func String() string {
	return fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
}
