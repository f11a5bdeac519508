package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/sbus.go/pkg/receiver"
	"github.com/robotalks/sbus.go/pkg/sbus"
	"github.com/robotalks/sbus.go/pkg/telemetry/msgs"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, err := websocket.Dial(url, "", server.URL)
	require.NoError(t, err)
	return conn
}

func receive(t *testing.T, conn *websocket.Conn) msgs.Message {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var pkt []byte
	require.NoError(t, websocket.Message.Receive(conn, &pkt))
	typed, err := msgs.DecodeTyped(pkt)
	require.NoError(t, err)
	require.True(t, typed.IsEvent())
	msg, err := typed.Decode()
	require.NoError(t, err)
	return msg
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(hub.Handler())
	defer server.Close()
	defer hub.Close()

	conn1, conn2 := dial(t, server), dial(t, server)
	defer conn1.Close()
	defer conn2.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, time.Millisecond)

	snap := receiver.Snapshot{State: sbus.StateSynced, Failsafe: sbus.SignalOK}
	snap.Channels[3] = 172
	require.NoError(t, hub.HandleSnapshot(context.Background(), snap, receiver.ChangeFrame))
	for _, conn := range []*websocket.Conn{conn1, conn2} {
		ev, ok := receive(t, conn).(*msgs.ChannelsEvent)
		require.True(t, ok)
		require.Equal(t, uint32(172), ev.Channels[3])
		require.Equal(t, sbus.SignalOK, ev.FailsafeStatus())
		_, ok = receive(t, conn).(*msgs.StatsEvent)
		require.True(t, ok)
	}

	conn1.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)
}

func TestHubSlowClient(t *testing.T) {
	hub := NewHub()
	hub.QueueSize = 1
	server := httptest.NewServer(hub.Handler())
	defer server.Close()
	defer hub.Close()

	conn := dial(t, server)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 100; i++ {
		hub.Broadcast([]byte{})
	}
	require.Equal(t, 1, hub.Clients())
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(hub.Handler())
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, hub.Close())
	require.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var pkt []byte
	require.Error(t, websocket.Message.Receive(conn, &pkt))

	late := dial(t, server)
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(time.Second)))
	require.Error(t, websocket.Message.Receive(late, &pkt))
	require.Zero(t, hub.Clients())
}
