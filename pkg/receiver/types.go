package receiver

import (
	"context"
	"strings"
	"time"

	"github.com/robotalks/sbus.go/pkg/sbus"
)

// Ref identifies a receiver.
type Ref struct {
	// Type is the receiver type, e.g. the radio model.
	Type string `json:"type" yaml:"type"`
	// ID is unique ID of the device.
	ID string `json:"id" yaml:"id"`
}

// Name retrieves the name from ref.
func (r Ref) Name() string {
	return r.Type + "/" + r.ID
}

// IsValid indicates Ref is valid. Neither part may contain MQTT topic
// separators or wildcards.
func (r Ref) IsValid() bool {
	return r.Type != "" && r.ID != "" &&
		!strings.ContainsAny(r.Type, "/+#") && !strings.ContainsAny(r.ID, "/+#")
}

// Meta provides descriptive metadata for a receiver.
type Meta struct {
	Description string            `json:"description,omitempty" yaml:"description"`
	Labels      map[string]string `json:"labels,omitempty" yaml:"labels"`
}

// Snapshot is an immutable copy of the decoder state taken after a loop
// iteration. It is safe to pass between goroutines.
type Snapshot struct {
	Channels sbus.Channels
	Failsafe sbus.FailsafeStatus
	State    sbus.SyncState
	Stats    sbus.Statistics
	// Overruns is the number of bytes dropped by the source, if it counts them.
	Overruns uint64
	// FrameAt is the time the last valid frame was decoded.
	FrameAt time.Time
}

// Synced indicates frames are being decoded.
func (s *Snapshot) Synced() bool {
	return s.State.IsSynced()
}

// Change flags what differs from the previously published Snapshot.
type Change int

// Change flags.
const (
	ChangeFrame Change = 1 << iota
	ChangeFailsafe
	ChangeSync
)

// Has checks a flag.
func (c Change) Has(flag Change) bool {
	return c&flag != 0
}

// Sink consumes published snapshots. HandleSnapshot is called from the
// loop goroutine and must not block.
type Sink interface {
	HandleSnapshot(context.Context, Snapshot, Change) error
}

// HandleSnapshotFunc is func form of Sink.
type HandleSnapshotFunc func(context.Context, Snapshot, Change) error

// HandleSnapshot implements Sink.
func (f HandleSnapshotFunc) HandleSnapshot(ctx context.Context, snap Snapshot, change Change) error {
	return f(ctx, snap, change)
}

// SnapshotSource provides the latest Snapshot.
type SnapshotSource interface {
	Snapshot() Snapshot
}
