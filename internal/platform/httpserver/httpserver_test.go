package httpserver

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anonpoll/internal/platform/config"
)

func TestNewAppliesConfiguredTimeouts(t *testing.T) {
	srv := New(config.Server{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: 2 * time.Second}, http.NotFoundHandler())

	assert.Equal(t, ":0", srv.Addr)
	assert.Equal(t, time.Second, srv.ReadTimeout)
	assert.Equal(t, 2*time.Second, srv.WriteTimeout)
	assert.Equal(t, 4*time.Second, srv.IdleTimeout)
	assert.Equal(t, readHeaderTimeout, srv.ReadHeaderTimeout)
}

func TestServeStopsWhenContextEnds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := New(config.Server{Addr: addr, WriteTimeout: time.Second}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, time.Second, nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeReportsListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	srv := New(config.Server{Addr: ln.Addr().String(), WriteTimeout: time.Second}, http.NotFoundHandler())
	err = Serve(context.Background(), srv, time.Second, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http server")
}
