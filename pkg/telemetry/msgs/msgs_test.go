package msgs

import (
	"errors"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/sbus.go/pkg/receiver"
	"github.com/robotalks/sbus.go/pkg/sbus"
)

func testSnapshot() receiver.Snapshot {
	snap := receiver.Snapshot{
		Failsafe: sbus.SignalLost,
		State:    sbus.StateSynced,
		Stats:    sbus.Statistics{Valid: 100, Lost: 3, Resync: 1},
		Overruns: 7,
		FrameAt:  time.Unix(1700000000, 500),
	}
	for n := range snap.Channels[:sbus.NumAnalogChannels] {
		snap.Channels[n] = uint16(n * 100)
	}
	snap.Channels[17] = 1
	return snap
}

func TestTypeIDKinds(t *testing.T) {
	tests := []struct {
		msg     Message
		command bool
		event   bool
		reply   bool
	}{
		{&StatusQuery{}, true, false, false},
		{&StatusReply{}, true, false, true},
		{&CommandErr{}, true, false, true},
		{&ChannelsEvent{}, false, true, false},
		{&StatsEvent{}, false, true, false},
	}
	for _, test := range tests {
		typed, err := TypedFrom(test.msg)
		require.NoError(t, err)
		require.Equal(t, test.command, typed.IsCommand(), "%T", test.msg)
		require.Equal(t, test.event, typed.IsEvent(), "%T", test.msg)
		require.Equal(t, test.reply, typed.IsReply(), "%T", test.msg)
		factory, ok := MessageTypes[test.msg.TypeID()]
		require.True(t, ok)
		require.IsType(t, test.msg, factory())
	}
}

func TestChannelsEvent(t *testing.T) {
	snap := testSnapshot()
	m := NewChannelsEvent(snap)
	require.Len(t, m.Channels, sbus.NumChannels)
	require.Equal(t, uint32(1500), m.Channels[15])
	require.Equal(t, uint32(0), m.Channels[16])
	require.Equal(t, uint32(1), m.Channels[17])
	require.Equal(t, sbus.SignalLost, m.FailsafeStatus())
	require.Equal(t, sbus.StateSynced, m.SyncState())
	require.Equal(t, snap.FrameAt.UnixNano(), m.FrameTime)
	require.Equal(t, snap.Channels, m.ChannelSet())

	m = NewChannelsEvent(receiver.Snapshot{})
	require.Zero(t, m.FrameTime)
	m.Channels = append(m.Channels, 1, 2, 3)
	require.Equal(t, sbus.Channels{}, m.ChannelSet())
}

func TestEncodeDecode(t *testing.T) {
	snap := testSnapshot()
	data, err := EncodeMessage(NewStatusReply(snap), 12)
	require.NoError(t, err)

	typed, err := DecodeTyped(data)
	require.NoError(t, err)
	require.Equal(t, StatusReplyTypeID, typed.TypeId)
	require.Equal(t, uint32(12), typed.Sequence)

	msg, err := typed.Decode()
	require.NoError(t, err)
	reply, ok := msg.(*StatusReply)
	require.True(t, ok)
	require.Equal(t, snap.Channels, reply.Channels.ChannelSet())
	require.Equal(t, uint64(100), reply.Stats.Valid)
	require.Equal(t, uint64(3), reply.Stats.Lost)
	require.Equal(t, uint64(1), reply.Stats.Resync)
	require.Equal(t, uint64(7), reply.Stats.Overruns)
	require.Equal(t, sbus.StateSynced, reply.Stats.SyncState())
}

func TestDecodeUnknownType(t *testing.T) {
	typed := &Typed{TypeId: GroupSBUS | 0x7ff0}
	_, err := typed.Decode()
	var unknown *ErrUnknownType
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, typed.TypeId, unknown.TypeID)
}

func TestTypedFromNotSerializable(t *testing.T) {
	var msg proto.Message = &Typed{}
	_, err := TypedFrom(msg)
	require.Equal(t, ErrNotSerializable, err)
}

func TestCommandErr(t *testing.T) {
	m := NewCommandErr(ErrUnsupportedCommand)
	require.Equal(t, ErrUnsupportedCommand.Error(), m.Error())
	data, err := EncodeMessage(m, 3)
	require.NoError(t, err)
	typed, err := DecodeTyped(data)
	require.NoError(t, err)
	require.True(t, typed.IsReply())
	msg, err := typed.Decode()
	require.NoError(t, err)
	require.Equal(t, m.Message, msg.(*CommandErr).Message)
}

func TestEventsFor(t *testing.T) {
	snap := testSnapshot()
	events := EventsFor(snap, receiver.ChangeFrame)
	require.Len(t, events, 2)
	require.IsType(t, &ChannelsEvent{}, events[0])
	require.IsType(t, &StatsEvent{}, events[1])

	events = EventsFor(snap, 0)
	require.Len(t, events, 1)
	require.IsType(t, &StatsEvent{}, events[0])
}
