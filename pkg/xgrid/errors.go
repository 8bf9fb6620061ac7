package xgrid

import (
	"errors"
	"fmt"
)

var (
	// ErrShortFrame indicates a frame shorter than the header.
	ErrShortFrame = errors.New("short frame")
	// ErrFrameIdentifier indicates a frame not starting with Identifier.
	ErrFrameIdentifier = errors.New("bad frame identifier")
	// ErrFrameSize indicates the size field doesn't match the frame or
	// exceeds what the engine can buffer.
	ErrFrameSize = errors.New("bad frame size")
	// ErrShortPayload indicates a payload too short for its packet type.
	ErrShortPayload = errors.New("short payload")
	// ErrPoolExhausted indicates no free slot is available. It's back-pressure,
	// the caller may retry on a later tick.
	ErrPoolExhausted = errors.New("buffer pool exhausted")
	// ErrTooManyLinks indicates MaxLinks links are already attached.
	ErrTooManyLinks = errors.New("too many links")
	// ErrUpdateInProgress indicates a non-network packet was sent while
	// pulling firmware.
	ErrUpdateInProgress = errors.New("firmware update in progress")
	// ErrOutOfImage indicates a page write outside of the image area.
	ErrOutOfImage = errors.New("address out of image")
	// ErrBadMagic indicates a maintenance command with a wrong magic number.
	ErrBadMagic = errors.New("bad maintenance magic")
)

// FrameError wraps codec errors with the offending offset.
type FrameError struct {
	Offset int
	Err    error
}

// Error implements error.
func (e *FrameError) Error() string {
	return fmt.Sprintf("frame error at %d: %v", e.Offset, e.Err)
}

// Unwrap returns the wrapped error.
func (e *FrameError) Unwrap() error {
	return e.Err
}
