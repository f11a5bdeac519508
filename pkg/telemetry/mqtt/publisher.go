package mqtt

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/sbus.go/pkg/framework"
	"github.com/robotalks/sbus.go/pkg/receiver"
	"github.com/robotalks/sbus.go/pkg/telemetry/msgs"
)

// DefaultEventQueueSize is the number of encoded events buffered
// between the loop and the MQTT client.
const DefaultEventQueueSize = 64

// Publisher publishes receiver events and answers commands over MQTT.
type Publisher struct {
	Queue  *Queue
	Ref    receiver.Ref
	Source receiver.SnapshotSource

	metaJSON []byte
	eventCh  chan []byte
	dropped  uint64
}

// NewPublisher creates a Publisher for the receiver identified by ref.
// The retained meta topic is cleared by the broker if the connection
// drops unexpectedly.
func NewPublisher(brokerURL string, ref receiver.Ref, meta receiver.Meta, src receiver.SnapshotSource) (*Publisher, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+ReceiverTopic(ref, TopicMeta), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("sbus:" + ref.Name())
	}
	return newPublisher(NewQueue(opts, topicPrefix), ref, meta, src)
}

func newPublisher(q *Queue, ref receiver.Ref, meta receiver.Meta, src receiver.SnapshotSource) (*Publisher, error) {
	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		Queue:    q,
		Ref:      ref,
		Source:   src,
		metaJSON: metaJSON,
		eventCh:  make(chan []byte, DefaultEventQueueSize),
	}
	q.OnConnect = func(*Queue) { p.publishMeta() }
	return p, nil
}

// HandleSnapshot implements receiver.Sink. Events are dropped when the
// queue is full.
func (p *Publisher) HandleSnapshot(ctx context.Context, snap receiver.Snapshot, change receiver.Change) error {
	for _, msg := range msgs.EventsFor(snap, change) {
		pkt, err := msgs.EncodeMessage(msg, 0)
		if err != nil {
			return err
		}
		select {
		case p.eventCh <- pkt:
		default:
			if n := atomic.AddUint64(&p.dropped, 1); n == 1 || n%1000 == 0 {
				glog.Warningf("mqtt event queue full, %d events dropped", n)
			}
		}
	}
	return nil
}

// Dropped returns the number of events dropped.
func (p *Publisher) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}

// AddToLoop implements LoopAdder.
func (p *Publisher) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(fx.NamedRun("mqtt", p))
}

// Run implements Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	p.Queue.Connect()
	sub := p.Queue.Sub(ReceiverTopic(p.Ref, TopicCmd), p.handleCommand)
	msgTopic := ReceiverTopic(p.Ref, TopicMsg)
	for {
		select {
		case pkt := <-p.eventCh:
			p.Queue.Pub(msgTopic, pkt)
		case <-ctx.Done():
			sub.Close()
			p.Queue.PubWith(ReceiverTopic(p.Ref, TopicMeta), nil, 1, true).WaitTimeout(time.Second)
			p.Queue.Close()
			return nil
		}
	}
}

func (p *Publisher) publishMeta() {
	glog.Infof("mqtt registered as %s", p.Ref.Name())
	p.Queue.PubWith(ReceiverTopic(p.Ref, TopicMeta), p.metaJSON, 1, true)
}

func (p *Publisher) handleCommand(_ string, payload []byte) {
	if pkt := p.reply(payload); pkt != nil {
		p.Queue.Pub(ReceiverTopic(p.Ref, TopicMsg), pkt)
	}
}

// reply builds the encoded reply of a command, nil when nothing should
// be replied.
func (p *Publisher) reply(payload []byte) []byte {
	typed, err := msgs.DecodeTyped(payload)
	if err != nil {
		glog.Warningf("mqtt invalid command: %v", err)
		return nil
	}
	if !typed.IsCommand() || typed.IsReply() {
		return nil
	}
	var res msgs.Message
	msg, err := typed.Decode()
	switch {
	case err != nil:
		res = msgs.NewCommandErr(err)
	default:
		switch msg.(type) {
		case *msgs.StatusQuery:
			res = msgs.NewStatusReply(p.Source.Snapshot())
		default:
			res = msgs.NewCommandErr(msgs.ErrUnsupportedCommand)
		}
	}
	pkt, err := msgs.EncodeMessage(res, typed.Sequence)
	if err != nil {
		glog.Errorf("mqtt encode reply: %v", err)
		return nil
	}
	return pkt
}
