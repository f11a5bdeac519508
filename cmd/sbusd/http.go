package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/golang/glog"
)

const shutdownTimeout = 2 * time.Second

// httpServer runs an http.Server as a Runnable.
type httpServer struct {
	Server *http.Server
	// Closer is closed before shutdown to release long running handlers.
	Closer io.Closer
}

func (s *httpServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		glog.Infof("http listening on %s", s.Server.Addr)
		errCh <- s.Server.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	if s.Closer != nil {
		s.Closer.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
