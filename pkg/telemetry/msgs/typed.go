// Package msgs defines the telemetry messages published for a receiver.
package msgs

import (
	"errors"
	"fmt"

	"github.com/golang/protobuf/proto"
)

// TypeID masks
const (
	TypeIDMaskKind  uint32 = 0x80000000
	TypeIDMaskGroup uint32 = 0x7fff0000
	TypeIDMaskID    uint32 = 0x0000ffff
	TypeIDMaskReply uint32 = 0x00008000
)

// Message Kinds
const (
	TypeIDKindCommand uint32 = 0x00000000
	TypeIDKindEvent   uint32 = 0x80000000
)

// TypeID Groups
const (
	GroupCommand uint32 = 0x00000000
	GroupSBUS    uint32 = 0x00030000
)

// TypeIDs
const (
	CommandErrTypeID    uint32 = GroupCommand | TypeIDMaskReply | 0x0001
	StatusQueryTypeID   uint32 = GroupSBUS | 0x0000
	StatusReplyTypeID   uint32 = StatusQueryTypeID | TypeIDMaskReply
	ChannelsEventTypeID uint32 = TypeIDKindEvent | GroupSBUS | 0x0001
	StatsEventTypeID    uint32 = TypeIDKindEvent | GroupSBUS | 0x0002
)

var (
	// ErrNotSerializable indicates the message is not serializable.
	ErrNotSerializable = errors.New("not serializable message")
	// ErrUnsupportedCommand indicates the command is unsupported.
	ErrUnsupportedCommand = errors.New("unsupported command")
)

// ErrUnknownType indicates unknown type id.
type ErrUnknownType struct {
	TypeID uint32
}

// Error implements error.
func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown type: %x", e.TypeID)
}

// Message is a protobuf message with a type ID.
type Message interface {
	proto.Message
	TypeID() uint32
}

// MessageTypes are predefined mapping of type ID to message factories.
var MessageTypes = map[uint32]func() Message{
	CommandErrTypeID:    func() Message { return &CommandErr{} },
	StatusQueryTypeID:   func() Message { return &StatusQuery{} },
	StatusReplyTypeID:   func() Message { return &StatusReply{} },
	ChannelsEventTypeID: func() Message { return &ChannelsEvent{} },
	StatsEventTypeID:    func() Message { return &StatsEvent{} },
}

// Typed wraps a message with type information.
type Typed struct {
	TypeId   uint32 `protobuf:"varint,1,opt,name=type_id,json=typeId,proto3" json:"type_id,omitempty"`
	Sequence uint32 `protobuf:"varint,2,opt,name=sequence,proto3" json:"sequence,omitempty"`
	Message  []byte `protobuf:"bytes,3,opt,name=message,proto3" json:"message,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Typed) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Typed) Reset() { *m = Typed{} }

// String implements proto.Message.
func (m *Typed) String() string { return proto.CompactTextString(m) }

// TypedFrom creates a Typed from a message.
func TypedFrom(msg proto.Message) (*Typed, error) {
	m, ok := msg.(Message)
	if !ok {
		return nil, ErrNotSerializable
	}
	data, err := proto.Marshal(m)
	if err != nil {
		return nil, err
	}
	return &Typed{TypeId: m.TypeID(), Message: data}, nil
}

// Decode decodes the packet into actual message.
func (m *Typed) Decode() (Message, error) {
	factory, ok := MessageTypes[m.TypeId]
	if !ok {
		return nil, &ErrUnknownType{TypeID: m.TypeId}
	}
	msg := factory()
	if err := proto.Unmarshal(m.Message, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Encode encodes the Typed to bytes.
func (m *Typed) Encode() ([]byte, error) {
	return proto.Marshal(m)
}

// Kind gets message kind from type ID.
func (m *Typed) Kind() uint32 {
	return m.TypeId & TypeIDMaskKind
}

// IsCommand determines if the message is a command.
func (m *Typed) IsCommand() bool {
	return m.Kind() == TypeIDKindCommand
}

// IsEvent determines if the message is an event.
func (m *Typed) IsEvent() bool {
	return m.Kind() == TypeIDKindEvent
}

// IsReply determines if the message is a reply to a command.
func (m *Typed) IsReply() bool {
	return m.IsCommand() && m.TypeId&TypeIDMaskReply != 0
}

// DecodeTyped decodes bytes into Typed.
func DecodeTyped(data []byte) (*Typed, error) {
	var typed Typed
	if err := proto.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	return &typed, nil
}

// EncodeMessage wraps msg in a Typed with seq and encodes it.
func EncodeMessage(msg Message, seq uint32) ([]byte, error) {
	typed, err := TypedFrom(msg)
	if err != nil {
		return nil, err
	}
	typed.Sequence = seq
	return typed.Encode()
}
