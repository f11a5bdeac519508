package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigArg(t *testing.T) {
	tests := []struct {
		args []string
		path string
	}{
		{nil, ""},
		{[]string{"-config", "a.yaml"}, "a.yaml"},
		{[]string{"--config", "a.yaml", "-id", "rx"}, "a.yaml"},
		{[]string{"-id", "rx", "-config=b.yaml"}, "b.yaml"},
		{[]string{"-config"}, ""},
		{[]string{"config", "a.yaml"}, ""},
		{[]string{"--", "-config", "a.yaml"}, ""},
	}
	for _, test := range tests {
		require.Equal(t, test.path, configArg(test.args), "%v", test.args)
	}
}

type testCloser struct{ closed bool }

func (c *testCloser) Close() error {
	c.closed = true
	return nil
}

func TestHTTPServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	closer := &testCloser{}
	s := &httpServer{
		Server: &http.Server{Addr: addr, Handler: http.NotFoundHandler()},
		Closer: closer,
	}
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() { doneCh <- s.Run(ctx) }()
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-doneCh)
	require.True(t, closer.closed)
}

func TestHTTPServerListenError(t *testing.T) {
	s := &httpServer{Server: &http.Server{Addr: "bad-address"}}
	require.Error(t, s.Run(context.Background()))
}
