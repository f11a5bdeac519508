package msgs

import (
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/sbus.go/pkg/receiver"
	"github.com/robotalks/sbus.go/pkg/sbus"
)

// CommandErr is the generic reply representing command error.
type CommandErr struct {
	Message string `protobuf:"bytes,1,opt,name=message,proto3" json:"message,omitempty"`
}

// NewCommandErr creates a CommandErr from an error.
func NewCommandErr(err error) *CommandErr {
	return &CommandErr{Message: err.Error()}
}

// TypeID implements Message.
func (m *CommandErr) TypeID() uint32 { return CommandErrTypeID }

// ProtoMessage implements proto.Message.
func (m *CommandErr) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandErr) Reset() { *m = CommandErr{} }

// String implements proto.Message.
func (m *CommandErr) String() string { return proto.CompactTextString(m) }

// Error implements error.
func (m *CommandErr) Error() string { return m.Message }

// StatusQuery asks a receiver for its latest state.
type StatusQuery struct {
}

// TypeID implements Message.
func (m *StatusQuery) TypeID() uint32 { return StatusQueryTypeID }

// ProtoMessage implements proto.Message.
func (m *StatusQuery) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StatusQuery) Reset() { *m = StatusQuery{} }

// String implements proto.Message.
func (m *StatusQuery) String() string { return proto.CompactTextString(m) }

// StatusReply is the response for StatusQuery.
type StatusReply struct {
	Channels *ChannelsEvent `protobuf:"bytes,1,opt,name=channels,proto3" json:"channels,omitempty"`
	Stats    *StatsEvent    `protobuf:"bytes,2,opt,name=stats,proto3" json:"stats,omitempty"`
}

// NewStatusReply creates a StatusReply from a snapshot.
func NewStatusReply(snap receiver.Snapshot) *StatusReply {
	return &StatusReply{Channels: NewChannelsEvent(snap), Stats: NewStatsEvent(snap)}
}

// TypeID implements Message.
func (m *StatusReply) TypeID() uint32 { return StatusReplyTypeID }

// ProtoMessage implements proto.Message.
func (m *StatusReply) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StatusReply) Reset() { *m = StatusReply{} }

// String implements proto.Message.
func (m *StatusReply) String() string { return proto.CompactTextString(m) }

// ChannelsEvent carries the channel values of the latest valid frame.
// Channels holds 16 analog values followed by digital channels 17 and 18.
// FrameTime is unix time in nanoseconds when the frame was decoded.
type ChannelsEvent struct {
	Channels  []uint32 `protobuf:"varint,1,rep,packed,name=channels,proto3" json:"channels,omitempty"`
	Failsafe  uint32   `protobuf:"varint,2,opt,name=failsafe,proto3" json:"failsafe,omitempty"`
	State     uint32   `protobuf:"varint,3,opt,name=state,proto3" json:"state,omitempty"`
	FrameTime int64    `protobuf:"varint,4,opt,name=frame_time,json=frameTime,proto3" json:"frame_time,omitempty"`
}

// NewChannelsEvent creates a ChannelsEvent from a snapshot.
func NewChannelsEvent(snap receiver.Snapshot) *ChannelsEvent {
	m := &ChannelsEvent{
		Channels: make([]uint32, len(snap.Channels)),
		Failsafe: uint32(snap.Failsafe),
		State:    uint32(snap.State),
	}
	for n, v := range snap.Channels {
		m.Channels[n] = uint32(v)
	}
	if !snap.FrameAt.IsZero() {
		m.FrameTime = snap.FrameAt.UnixNano()
	}
	return m
}

// TypeID implements Message.
func (m *ChannelsEvent) TypeID() uint32 { return ChannelsEventTypeID }

// ProtoMessage implements proto.Message.
func (m *ChannelsEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ChannelsEvent) Reset() { *m = ChannelsEvent{} }

// String implements proto.Message.
func (m *ChannelsEvent) String() string { return proto.CompactTextString(m) }

// FailsafeStatus converts Failsafe.
func (m *ChannelsEvent) FailsafeStatus() sbus.FailsafeStatus {
	return sbus.FailsafeStatus(m.Failsafe)
}

// SyncState converts State.
func (m *ChannelsEvent) SyncState() sbus.SyncState {
	return sbus.SyncState(m.State)
}

// ChannelSet converts Channels, ignoring extra values.
func (m *ChannelsEvent) ChannelSet() (ch sbus.Channels) {
	for n := 0; n < len(m.Channels) && n < len(ch); n++ {
		ch[n] = uint16(m.Channels[n])
	}
	return
}

// StatsEvent carries the decoder statistics.
type StatsEvent struct {
	Valid    uint64 `protobuf:"varint,1,opt,name=valid,proto3" json:"valid,omitempty"`
	Lost     uint64 `protobuf:"varint,2,opt,name=lost,proto3" json:"lost,omitempty"`
	Resync   uint64 `protobuf:"varint,3,opt,name=resync,proto3" json:"resync,omitempty"`
	Overruns uint64 `protobuf:"varint,4,opt,name=overruns,proto3" json:"overruns,omitempty"`
	State    uint32 `protobuf:"varint,5,opt,name=state,proto3" json:"state,omitempty"`
}

// NewStatsEvent creates a StatsEvent from a snapshot.
func NewStatsEvent(snap receiver.Snapshot) *StatsEvent {
	return &StatsEvent{
		Valid:    snap.Stats.Valid,
		Lost:     snap.Stats.Lost,
		Resync:   snap.Stats.Resync,
		Overruns: snap.Overruns,
		State:    uint32(snap.State),
	}
}

// TypeID implements Message.
func (m *StatsEvent) TypeID() uint32 { return StatsEventTypeID }

// ProtoMessage implements proto.Message.
func (m *StatsEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StatsEvent) Reset() { *m = StatsEvent{} }

// String implements proto.Message.
func (m *StatsEvent) String() string { return proto.CompactTextString(m) }

// SyncState converts State.
func (m *StatsEvent) SyncState() sbus.SyncState {
	return sbus.SyncState(m.State)
}

// EventsFor builds the events to publish for a snapshot change.
// Statistics are sent with every change.
func EventsFor(snap receiver.Snapshot, change receiver.Change) []Message {
	events := make([]Message, 0, 2)
	if change != 0 {
		events = append(events, NewChannelsEvent(snap))
	}
	return append(events, NewStatsEvent(snap))
}
