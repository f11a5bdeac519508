package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robotalks/sbus.go/pkg/receiver"
	"github.com/robotalks/sbus.go/pkg/telemetry/msgs"
)

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Info describes a discovered receiver.
type Info struct {
	Ref  receiver.Ref  `json:"ref"`
	Meta receiver.Meta `json:"meta"`
}

// Client talks to receivers through the broker.
type Client struct {
	Queue           *Queue
	DiscoverTimeout time.Duration

	seq uint32
}

// NewClient creates a Client.
func NewClient(brokerURL string) (*Client, error) {
	q, err := NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return NewClientWith(q), nil
}

// NewClientWith creates a Client with an existing Queue.
func NewClientWith(q *Queue) *Client {
	return &Client{Queue: q, DiscoverTimeout: DefaultDiscoverTimeout}
}

// Connect connects to the broker.
func (c *Client) Connect(ctx context.Context) error {
	token := c.Queue.Connect()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements io.Closer.
func (c *Client) Close() error {
	return c.Queue.Close()
}

// Discover collects the receivers online, from retained meta topics.
func (c *Client) Discover(ctx context.Context) (res []Info, err error) {
	resCh := make(chan Info, 16)
	sub := c.Queue.Sub("+/+/"+TopicMeta, func(topic string, payload []byte) {
		items := strings.Split(topic, "/")
		if len(items) != 3 || len(payload) == 0 {
			return
		}
		info := Info{Ref: receiver.Ref{Type: items[0], ID: items[1]}}
		json.Unmarshal(payload, &info.Meta)
		select {
		case resCh <- info:
		case <-time.After(time.Second):
		}
	})
	defer sub.Close()

	dur := c.DiscoverTimeout
	if dur <= 0 {
		dur = DefaultDiscoverTimeout
	}
	timeout := time.After(dur)
	for {
		select {
		case info := <-resCh:
			res = append(res, info)
		case <-timeout:
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// Query sends a StatusQuery and waits for the reply.
func (c *Client) Query(ctx context.Context, ref receiver.Ref) (*msgs.StatusReply, error) {
	seq := atomic.AddUint32(&c.seq, 1)
	resCh := make(chan *msgs.Typed, 1)
	sub := c.Queue.Sub(ReceiverTopic(ref, TopicMsg), func(_ string, payload []byte) {
		typed, err := msgs.DecodeTyped(payload)
		if err != nil || !typed.IsReply() || typed.Sequence != seq {
			return
		}
		select {
		case resCh <- typed:
		default:
		}
	})
	defer sub.Close()
	sub.Token.Wait()

	pkt, err := msgs.EncodeMessage(&msgs.StatusQuery{}, seq)
	if err != nil {
		return nil, err
	}
	c.Queue.Pub(ReceiverTopic(ref, TopicCmd), pkt)

	select {
	case typed := <-resCh:
		msg, err := typed.Decode()
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *msgs.StatusReply:
			return m, nil
		case *msgs.CommandErr:
			return nil, m
		default:
			return nil, &msgs.ErrUnknownType{TypeID: typed.TypeId}
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Watch calls handler with every event from the receiver until ctx is
// done. handler is called from the MQTT client goroutine.
func (c *Client) Watch(ctx context.Context, ref receiver.Ref, handler func(msgs.Message)) error {
	sub := c.Queue.Sub(ReceiverTopic(ref, TopicMsg), func(_ string, payload []byte) {
		typed, err := msgs.DecodeTyped(payload)
		if err != nil || !typed.IsEvent() {
			return
		}
		if msg, err := typed.Decode(); err == nil {
			handler(msg)
		}
	})
	defer sub.Close()
	<-ctx.Done()
	return ctx.Err()
}
