package sbus

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type syncTestSequence struct {
	in     []byte
	state  SyncState
	cursor int
}

type syncTestSequenceBuilder struct {
	seq []syncTestSequence
}

func syncTestSequences() *syncTestSequenceBuilder {
	return &syncTestSequenceBuilder{}
}

func (b *syncTestSequenceBuilder) on(state SyncState, cursor int, in ...byte) *syncTestSequenceBuilder {
	b.seq = append(b.seq, syncTestSequence{in: in, state: state, cursor: cursor})
	return b
}

func (b *syncTestSequenceBuilder) unsynced(in ...byte) *syncTestSequenceBuilder {
	return b.on(StateUnsynced, 0, in...)
}

func (b *syncTestSequenceBuilder) seeking(cursor int, in ...byte) *syncTestSequenceBuilder {
	return b.on(StateSeekingEnd, cursor, in...)
}

func (b *syncTestSequenceBuilder) synced(in ...byte) *syncTestSequenceBuilder {
	return b.on(StateSynced, 0, in...)
}

func (b *syncTestSequenceBuilder) build() []syncTestSequence {
	return b.seq
}

func filler(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestSynchronizer(t *testing.T) {
	testCases := []struct {
		name string
		seq  []syncTestSequence
	}{
		{
			name: "sync on start and end marker",
			seq: syncTestSequences().
				seeking(1, StartByte).
				seeking(24, filler(23, 0x55)...).
				synced(EndByte).
				build(),
		},
		{
			name: "skip garbage before start marker",
			seq: syncTestSequences().
				unsynced(0x00, 0x01, 0xff, 0xf0, 0x10).
				seeking(1, StartByte).
				seeking(12, filler(11, 0x00)...).
				build(),
		},
		{
			name: "start marker inside candidate is skipped",
			seq: syncTestSequences().
				seeking(1, StartByte).
				seeking(24, filler(23, StartByte)...).
				synced(EndByte).
				build(),
		},
		{
			name: "bad end marker drops back",
			seq: syncTestSequences().
				seeking(1, StartByte).
				seeking(24, filler(23, 0x01)...).
				unsynced(0x01).
				seeking(1, StartByte).
				build(),
		},
		{
			name: "failed end byte is not a start marker",
			seq: syncTestSequences().
				seeking(1, StartByte).
				seeking(24, filler(23, 0x01)...).
				unsynced(StartByte).
				unsynced(filler(23, 0x01)...).
				unsynced(EndByte).
				build(),
		},
		{
			name: "bytes ignored once synced",
			seq: syncTestSequences().
				seeking(1, StartByte).
				seeking(24, filler(23, 0x00)...).
				synced(EndByte).
				synced(0x01, StartByte, 0x02).
				build(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var s Synchronizer
			for n, step := range tc.seq {
				for _, b := range step.in {
					s.Byte(b)
				}
				require.Equalf(t, step.state, s.State(), "seq[%d] state mismatch", n)
				require.Equalf(t, step.cursor, s.Cursor(), "seq[%d] cursor mismatch", n)
			}
		})
	}
}

func TestSynchronizerNeed(t *testing.T) {
	var s Synchronizer
	require.Equal(t, 1, s.Need())
	s.Byte(StartByte)
	require.Equal(t, 1, s.Need())
	syncUp(&s)
	require.Equal(t, FrameLen, s.Need())
}

// syncUp drives a Synchronizer from StateSeekingEnd or StateUnsynced into StateSynced.
func syncUp(s *Synchronizer) {
	if s.State() == StateUnsynced {
		s.Byte(StartByte)
	}
	for s.State() == StateSeekingEnd {
		s.Byte(EndByte)
	}
}

func TestSynchronizerThreshold(t *testing.T) {
	valid := packFrame([NumAnalogChannels]uint16{}, 0)
	invalid := valid
	invalid[FrameLen-1] = 0x04

	testCases := []struct {
		name    string
		invalid int
		resync  bool
	}{
		{"one invalid", 1, false},
		{"at threshold", OutOfSyncThreshold, false},
		{"past threshold", OutOfSyncThreshold + 1, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var s Synchronizer
			syncUp(&s)
			resyncs := 0
			for i := 0; i < tc.invalid; i++ {
				ok, resync := s.Frame(&invalid)
				require.False(t, ok)
				if resync {
					resyncs++
					require.Equal(t, tc.invalid-1, i, "resync before the last frame")
				}
			}
			if tc.resync {
				require.Equal(t, 1, resyncs)
				require.Equal(t, StateUnsynced, s.State())
			} else {
				require.Zero(t, resyncs)
				require.Equal(t, StateSynced, s.State())
				require.Equal(t, tc.invalid, s.OutOfSync())
			}
		})
	}
}

func TestSynchronizerValidFrameResetsRun(t *testing.T) {
	valid := packFrame([NumAnalogChannels]uint16{}, 0)
	invalid := valid
	invalid[0] = 0x00

	var s Synchronizer
	syncUp(&s)
	for round := 0; round < 3; round++ {
		for i := 0; i < OutOfSyncThreshold; i++ {
			_, resync := s.Frame(&invalid)
			require.False(t, resync)
		}
		ok, resync := s.Frame(&valid)
		require.True(t, ok)
		require.False(t, resync)
		require.Zero(t, s.OutOfSync())
	}
	require.Equal(t, StateSynced, s.State())
}

func TestSynchronizerResyncClearsRunOnSync(t *testing.T) {
	var invalid Frame
	var s Synchronizer
	syncUp(&s)
	for i := 0; i <= OutOfSyncThreshold; i++ {
		s.Frame(&invalid)
	}
	require.Equal(t, StateUnsynced, s.State())
	syncUp(&s)
	require.Equal(t, StateSynced, s.State())
	require.Zero(t, s.OutOfSync())
}

func TestSynchronizerReset(t *testing.T) {
	var s Synchronizer
	syncUp(&s)
	s.Reset()
	require.Equal(t, StateUnsynced, s.State())
	require.Zero(t, s.Cursor())
	require.Zero(t, s.OutOfSync())
}

func TestSyncState(t *testing.T) {
	require.False(t, StateUnsynced.IsSynced())
	require.False(t, StateSeekingEnd.IsSynced())
	require.True(t, StateSynced.IsSynced())
	require.Equal(t, "unsynced", StateUnsynced.String())
	require.Equal(t, "seeking-end", StateSeekingEnd.String())
	require.Equal(t, "synced", StateSynced.String())
	require.Equal(t, "SyncState(9)", SyncState(9).String())
}
