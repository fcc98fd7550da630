// ABOUTME: Closed error taxonomy for the bridge surface
// ABOUTME: Sentinel errors with stable numeric result codes for wire and FFI use
package bridge

import "errors"

// Sentinel errors returned by every bridge operation. Callers branch with
// errors.Is; wire protocols carry the matching Result code instead.
var (
	ErrInvalidHandle   = errors.New("bridge: invalid handle")
	ErrInvalidArgument = errors.New("bridge: invalid argument")
	ErrDeviceError     = errors.New("bridge: audio device error")
	ErrChannelFull     = errors.New("bridge: command channel full")
	ErrInternal        = errors.New("bridge: internal error")
)

// Result is the numeric code for one bridge outcome. Values are part of
// the stable surface and never renumbered.
type Result int32

const (
	ResultOK              Result = 0
	ResultInvalidHandle   Result = 1
	ResultInvalidArgument Result = 2
	ResultDeviceError     Result = 3
	ResultChannelFull     Result = 4
	ResultInternal        Result = 5
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultInvalidHandle:
		return "invalid_handle"
	case ResultInvalidArgument:
		return "invalid_argument"
	case ResultDeviceError:
		return "device_error"
	case ResultChannelFull:
		return "channel_full"
	case ResultInternal:
		return "internal_error"
	}
	return "unknown"
}

// Code maps an error returned by a bridge call to its result code. A nil
// error is ResultOK; anything outside the taxonomy is ResultInternal.
func Code(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrInvalidHandle):
		return ResultInvalidHandle
	case errors.Is(err, ErrInvalidArgument):
		return ResultInvalidArgument
	case errors.Is(err, ErrDeviceError):
		return ResultDeviceError
	case errors.Is(err, ErrChannelFull):
		return ResultChannelFull
	default:
		return ResultInternal
	}
}
