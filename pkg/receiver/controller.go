package receiver

import (
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/sbus.go/pkg/framework"
	"github.com/robotalks/sbus.go/pkg/sbus"
)

// DefaultMaxPollsPerTick bounds the polls in one iteration. While
// unsynced every poll consumes a single byte, so this must exceed the
// bytes arriving per interval for the decoder to catch up.
const DefaultMaxPollsPerTick = 64

// DefaultPublishInterval limits how often frame updates reach the sinks.
const DefaultPublishInterval = 20 * time.Millisecond

type overrunCounter interface {
	Overruns() uint64
}

// Controller owns an SBUS decoder and its byte source. It polls the
// decoder on every loop iteration and publishes a Snapshot that may be
// read from other goroutines.
type Controller struct {
	Source          sbus.ByteSource
	MaxPollsPerTick int
	PublishInterval time.Duration

	decoder     *sbus.Decoder
	sinks       []Sink
	current     Snapshot
	published   Snapshot
	publishedAt time.Time

	snapshot Snapshot
	lock     sync.RWMutex
}

// NewController creates a Controller reading from src.
func NewController(src sbus.ByteSource) *Controller {
	c := &Controller{
		Source:          src,
		MaxPollsPerTick: DefaultMaxPollsPerTick,
		PublishInterval: DefaultPublishInterval,
		decoder:         sbus.NewDecoder(src),
	}
	c.current = c.capture()
	c.published, c.snapshot = c.current, c.current
	return c
}

// AddSink registers sinks for published snapshots.
func (c *Controller) AddSink(sinks ...Sink) *Controller {
	c.sinks = append(c.sinks, sinks...)
	return c
}

// AddToLoop implements LoopAdder.
func (c *Controller) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvSense, c)
	if runnable, ok := c.Source.(fx.Runnable); ok {
		loop.AddRunnable(fx.NamedRun("source", runnable))
	}
}

// Snapshot implements SnapshotSource.
func (c *Controller) Snapshot() Snapshot {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.snapshot
}

// Control implements Controller.
func (c *Controller) Control(cc fx.ControlContext) error {
	err := c.poll(cc.Time())
	c.lock.Lock()
	c.snapshot = c.current
	c.lock.Unlock()

	change := c.changes(cc.Time())
	if change == 0 {
		return err
	}
	var errs fx.AggregatedError
	errs.Add(err)
	for _, sink := range c.sinks {
		errs.Add(sink.HandleSnapshot(cc.Context(), c.current, change))
	}
	return errs.Aggregate()
}

func (c *Controller) poll(now time.Time) error {
	maxPolls := c.MaxPollsPerTick
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPollsPerTick
	}
	var frameAt time.Time
	for i := 0; i < maxPolls; i++ {
		pr, err := c.decoder.Poll()
		if pr.Frame {
			frameAt = now
		}
		if pr.Resync {
			glog.Warningf("lost frame alignment after %d invalid frames", sbus.OutOfSyncThreshold+1)
		}
		if err != nil {
			c.update(frameAt)
			return err
		}
		if !pr.Progressed() {
			break
		}
	}
	c.update(frameAt)
	return nil
}

func (c *Controller) update(frameAt time.Time) {
	snap := c.capture()
	snap.FrameAt = c.current.FrameAt
	if !frameAt.IsZero() {
		snap.FrameAt = frameAt
	}
	c.current = snap
}

func (c *Controller) capture() Snapshot {
	snap := Snapshot{
		Channels: c.decoder.Channels(),
		Failsafe: c.decoder.FailsafeStatus(),
		State:    c.decoder.State(),
		Stats:    c.decoder.Statistics(),
	}
	if counter, ok := c.Source.(overrunCounter); ok {
		snap.Overruns = counter.Overruns()
	}
	return snap
}

func (c *Controller) changes(now time.Time) (change Change) {
	cur, prev := &c.current, &c.published
	if cur.Failsafe != prev.Failsafe {
		change |= ChangeFailsafe
		if cur.Failsafe == sbus.SignalOK {
			glog.Infof("link status %s (was %s)", cur.Failsafe, prev.Failsafe)
		} else {
			glog.Warningf("link status %s (was %s)", cur.Failsafe, prev.Failsafe)
		}
	}
	if cur.Synced() != prev.Synced() {
		change |= ChangeSync
		glog.Infof("frame sync %s", cur.State)
	}
	if cur.Stats.Valid != prev.Stats.Valid &&
		(change != 0 || now.Sub(c.publishedAt) >= c.PublishInterval) {
		change |= ChangeFrame
	}
	if change != 0 {
		c.published, c.publishedAt = c.current, now
	}
	return
}

// StatsLogger periodically logs decoder statistics.
type StatsLogger struct {
	Source   SnapshotSource
	Interval time.Duration

	last      time.Time
	lastStats sbus.Statistics
}

// AddToLoop implements LoopAdder.
func (l *StatsLogger) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvPostProc, l)
}

// Control implements Controller.
func (l *StatsLogger) Control(cc fx.ControlContext) error {
	if l.Interval <= 0 {
		return nil
	}
	now := cc.Time()
	if l.last.IsZero() {
		l.last = now
		return nil
	}
	if now.Sub(l.last) < l.Interval {
		return nil
	}
	snap := l.Source.Snapshot()
	stats := snap.Stats
	glog.Infof("%s %s: valid=%d (+%d) lost=%d (+%d) resync=%d overruns=%d",
		snap.State, snap.Failsafe,
		stats.Valid, stats.Valid-l.lastStats.Valid,
		stats.Lost, stats.Lost-l.lastStats.Lost,
		stats.Resync, snap.Overruns)
	l.last, l.lastStats = now, stats
	return nil
}
