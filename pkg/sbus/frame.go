package sbus

import "fmt"

// Frame layout constants.
const (
	FrameLen = 25

	StartByte byte = 0x0f
	EndByte   byte = 0x00

	payloadIndex = 1
	flagsIndex   = FrameLen - 2
	endIndex     = FrameLen - 1
)

// Channel layout constants.
const (
	// NumAnalogChannels is the number of channels packed into the payload.
	NumAnalogChannels = 16
	// NumDigitalChannels is the number of single-bit channels in the flags byte.
	NumDigitalChannels = 2
	// NumChannels is the capacity of a Channels set: analog + digital.
	NumChannels = 18
	// BitsPerChannel is the width of a packed analog channel.
	BitsPerChannel = 11
	// PayloadBits is the total number of packed bits in a frame.
	PayloadBits = NumAnalogChannels * BitsPerChannel
	// MaxChannelValue is the largest value an analog channel can carry.
	MaxChannelValue uint16 = 1<<BitsPerChannel - 1
)

// Flag bits in byte 23.
const (
	FlagDigital17 byte = 1 << 0
	FlagDigital18 byte = 1 << 1
	FlagFrameLost byte = 1 << 2
	FlagFailsafe  byte = 1 << 3
)

func init() {
	if PayloadBits != (flagsIndex-payloadIndex)*8 {
		panic(fmt.Sprintf("sbus: %d packed bits do not fill %d payload bytes", PayloadBits, flagsIndex-payloadIndex))
	}
	if NumChannels != NumAnalogChannels+NumDigitalChannels {
		panic(fmt.Sprintf("sbus: channel capacity %d does not hold %d analog + %d digital channels",
			NumChannels, NumAnalogChannels, NumDigitalChannels))
	}
}

// Frame is one raw SBUS frame.
type Frame [FrameLen]byte

// Channels holds the 16 analog channel values followed by the two digital
// channels (17 and 18) as 0 or 1.
type Channels [NumChannels]uint16

// FailsafeStatus reports the link health carried in the flags byte.
type FailsafeStatus int

const (
	// SignalOK means the receiver has a valid link.
	SignalOK FailsafeStatus = iota
	// SignalLost means the receiver flagged this frame as lost.
	SignalLost
	// SignalFailsafe means the receiver is in failsafe.
	SignalFailsafe
)

// String implements fmt.Stringer.
func (s FailsafeStatus) String() string {
	switch s {
	case SignalOK:
		return "ok"
	case SignalLost:
		return "signal-lost"
	case SignalFailsafe:
		return "failsafe"
	}
	return fmt.Sprintf("FailsafeStatus(%d)", int(s))
}

// Valid checks the start and end markers.
func (f *Frame) Valid() bool {
	return f[0] == StartByte && f[endIndex] == EndByte
}

// Flags returns the flags byte.
func (f *Frame) Flags() byte {
	return f[flagsIndex]
}

// FailsafeStatus derives the link status from the flags byte.
// Failsafe takes precedence over frame lost.
func (f *Frame) FailsafeStatus() FailsafeStatus {
	flags := f.Flags()
	if flags&FlagFailsafe != 0 {
		return SignalFailsafe
	}
	if flags&FlagFrameLost != 0 {
		return SignalLost
	}
	return SignalOK
}

// Decode unpacks all channels into ch, overwriting every slot, and
// returns the failsafe status. The markers are not checked.
func (f *Frame) Decode(ch *Channels) FailsafeStatus {
	var acc uint32
	var bits uint
	pos := payloadIndex
	for n := 0; n < NumAnalogChannels; n++ {
		for bits < BitsPerChannel {
			acc |= uint32(f[pos]) << bits
			pos++
			bits += 8
		}
		ch[n] = uint16(acc) & MaxChannelValue
		acc >>= BitsPerChannel
		bits -= BitsPerChannel
	}
	flags := f.Flags()
	ch[NumAnalogChannels] = uint16(flags & FlagDigital17)
	ch[NumAnalogChannels+1] = uint16(flags&FlagDigital18) >> 1
	return f.FailsafeStatus()
}

// Analog returns the analog channel values.
func (c *Channels) Analog() []uint16 {
	return c[:NumAnalogChannels]
}

// Digital reports digital channel n, which is either 17 or 18.
func (c *Channels) Digital(n int) bool {
	switch n {
	case 17, 18:
		return c[NumAnalogChannels+n-17] != 0
	}
	return false
}
