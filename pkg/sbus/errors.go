package sbus

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelOutOfRange indicates a channel index outside [0, NumChannels).
	ErrChannelOutOfRange = errors.New("channel out of range")
	// ErrNoSource indicates a Decoder was created without a ByteSource.
	ErrNoSource = errors.New("no byte source")
)

// ChannelRangeError reports the offending channel index.
type ChannelRangeError struct {
	Index int
}

// Error implements error.
func (e *ChannelRangeError) Error() string {
	return fmt.Sprintf("channel %d out of range [0, %d)", e.Index, NumChannels)
}

// Is matches ErrChannelOutOfRange.
func (e *ChannelRangeError) Is(target error) bool {
	return target == ErrChannelOutOfRange
}
