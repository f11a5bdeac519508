package sbus

import "fmt"

// ByteSource supplies received bytes. Read may return fewer bytes than
// requested; the decoder never asks for more than Available reports.
type ByteSource interface {
	Available() int
	Read(p []byte) (int, error)
}

// Statistics counts decoding outcomes over the lifetime of a Decoder.
type Statistics struct {
	Valid  uint64 // valid frames decoded
	Lost   uint64 // frames with bad markers or short reads
	Resync uint64 // times the decoder fell back to StateUnsynced
}

// PollResult reports what a single Poll did.
type PollResult struct {
	State    SyncState
	Consumed int  // bytes read from the source
	Frame    bool // a valid frame was decoded
	Resync   bool // the decoder dropped back to StateUnsynced
}

// Progressed indicates bytes were consumed.
func (r PollResult) Progressed() bool {
	return r.Consumed > 0
}

// Decoder decodes SBUS frames from a ByteSource. It is not safe for
// concurrent use; serialize Poll and the accessors externally.
type Decoder struct {
	src      ByteSource
	sync     Synchronizer
	frame    Frame
	channels Channels
	failsafe FailsafeStatus
	stats    Statistics
}

// NewDecoder creates a Decoder reading from src.
func NewDecoder(src ByteSource) *Decoder {
	return &Decoder{src: src, failsafe: SignalFailsafe}
}

// Poll performs at most one read from the source and never blocks.
// The UNSYNCED and SEEKING_END states consume a single byte, SYNCED
// consumes a whole frame. When fewer bytes are available nothing happens.
func (d *Decoder) Poll() (pr PollResult, err error) {
	if d.src == nil {
		return PollResult{State: d.sync.State()}, ErrNoSource
	}
	need := d.sync.Need()
	if d.src.Available() < need {
		pr.State = d.sync.State()
		return
	}
	buf := d.frame[:need]
	n, err := d.src.Read(buf)
	if n > need {
		n = need
	}
	pr.Consumed = n
	switch {
	case need == 1:
		if n == 1 {
			d.sync.Byte(buf[0])
		}
	case n == need:
		var valid bool
		valid, pr.Resync = d.sync.Frame(&d.frame)
		if valid {
			d.stats.Valid++
			d.failsafe = d.frame.Decode(&d.channels)
			pr.Frame = true
		} else {
			d.stats.Lost++
		}
	case n > 0:
		// a partial frame breaks alignment as much as a corrupted one.
		d.stats.Lost++
		pr.Resync = d.sync.account(false)
	}
	if pr.Resync {
		d.stats.Resync++
	}
	pr.State = d.sync.State()
	if err != nil {
		err = fmt.Errorf("sbus: read: %w", err)
	}
	return
}

// State gets the current synchronization state.
func (d *Decoder) State() SyncState {
	return d.sync.State()
}

// Channels returns the channel values of the last valid frame, all zero
// before the first one.
func (d *Decoder) Channels() Channels {
	return d.channels
}

// Channel returns a single channel value. Index 0..15 are analog channels,
// 16 and 17 are digital channels 17 and 18.
func (d *Decoder) Channel(index int) (uint16, error) {
	if index < 0 || index >= NumChannels {
		return 0, &ChannelRangeError{Index: index}
	}
	return d.channels[index], nil
}

// FailsafeStatus returns the status carried by the last valid frame.
// It is SignalFailsafe until a valid frame is decoded.
func (d *Decoder) FailsafeStatus() FailsafeStatus {
	return d.failsafe
}

// Statistics returns a snapshot of the counters.
func (d *Decoder) Statistics() Statistics {
	return d.stats
}
