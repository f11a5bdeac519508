package sbus

import "fmt"

// SyncState indicates where the decoder is relative to frame boundaries.
type SyncState int

const (
	// StateUnsynced means searching byte by byte for a start marker.
	StateUnsynced SyncState = iota
	// StateSeekingEnd means a start marker was seen and the candidate
	// frame is being skipped to check its end marker.
	StateSeekingEnd
	// StateSynced means reads are aligned to frame boundaries.
	StateSynced
)

// OutOfSyncThreshold is the number of consecutive invalid frames tolerated
// in StateSynced. One more forces a resync.
const OutOfSyncThreshold = 10

// String implements fmt.Stringer.
func (s SyncState) String() string {
	switch s {
	case StateUnsynced:
		return "unsynced"
	case StateSeekingEnd:
		return "seeking-end"
	case StateSynced:
		return "synced"
	}
	return fmt.Sprintf("SyncState(%d)", int(s))
}

// IsSynced indicates frames can be read.
func (s SyncState) IsSynced() bool {
	return s == StateSynced
}

// Synchronizer is the frame synchronization state machine. It does no I/O:
// the caller asks Need how many bytes the current state consumes, then
// feeds them through Byte or Frame.
type Synchronizer struct {
	state     SyncState
	cursor    int
	outOfSync int
}

// State gets the current state.
func (s *Synchronizer) State() SyncState {
	return s.state
}

// Cursor is the offset of the next byte within the candidate frame
// while seeking the end marker.
func (s *Synchronizer) Cursor() int {
	return s.cursor
}

// OutOfSync is the current run of consecutive invalid frames.
func (s *Synchronizer) OutOfSync() int {
	return s.outOfSync
}

// Need returns the number of bytes the next step consumes.
func (s *Synchronizer) Need() int {
	if s.state == StateSynced {
		return FrameLen
	}
	return 1
}

// Byte consumes one byte while not synced. It is a no-op in StateSynced.
func (s *Synchronizer) Byte(b byte) SyncState {
	switch s.state {
	case StateUnsynced:
		s.seekStart(b)
	case StateSeekingEnd:
		s.seekEnd(b)
	}
	return s.state
}

// Frame validates a whole frame read in StateSynced. resync is true when
// this frame pushed the invalid run past OutOfSyncThreshold.
func (s *Synchronizer) Frame(f *Frame) (valid, resync bool) {
	valid = f.Valid()
	return valid, s.account(valid)
}

// Reset drops back to StateUnsynced.
func (s *Synchronizer) Reset() {
	s.state, s.cursor, s.outOfSync = StateUnsynced, 0, 0
}

func (s *Synchronizer) seekStart(b byte) {
	if b == StartByte {
		s.state, s.cursor = StateSeekingEnd, 1
	}
}

func (s *Synchronizer) seekEnd(b byte) {
	if s.cursor < endIndex {
		s.cursor++
		return
	}
	if b == EndByte {
		s.state, s.cursor, s.outOfSync = StateSynced, 0, 0
		return
	}
	// the failed end byte is not considered as a start marker.
	s.state, s.cursor = StateUnsynced, 0
}

func (s *Synchronizer) account(valid bool) (resync bool) {
	if valid {
		s.outOfSync = 0
		return false
	}
	s.outOfSync++
	if s.outOfSync > OutOfSyncThreshold {
		s.state, s.cursor = StateUnsynced, 0
		return true
	}
	return false
}
