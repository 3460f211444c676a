package client

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rtcplabs/rtcp/internal/config"
	"github.com/rtcplabs/rtcp/pkg/pool"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestProxyTaskReturnsBackendWhenBackendClosesFirst(t *testing.T) {
	backendLocal, backendRemote := net.Pipe()
	dataLocal, dataRemote := net.Pipe()

	c := &Client{log: discardLogger()}
	c.backendPool = pool.New(pool.WithRecycleTTL(config.ClientRecycleTTL))
	c.dataPool = pool.New()

	if err := c.backendPool.Add(backendLocal); err != nil {
		t.Fatalf("Add backend: %v", err)
	}
	if err := c.dataPool.Add(dataLocal); err != nil {
		t.Fatalf("Add data: %v", err)
	}

	go func() {
		backendRemote.Close()
	}()
	go func() {
		buf := make([]byte, 16)
		for {
			if _, err := dataRemote.Read(buf); err != nil {
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		c.proxyTask(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("proxyTask did not return")
	}

	if st := c.backendPool.Status(); st.Available != 1 {
		t.Fatalf("expected backend socket returned to pool, got Available=%d", st.Available)
	}
	if st := c.dataPool.Status(); st.Available != 0 {
		t.Fatalf("expected data socket never returned to pool, got Available=%d", st.Available)
	}
}

func TestProxyTaskDisconnectsBackendWhenDataClosesFirst(t *testing.T) {
	backendLocal, backendRemote := net.Pipe()
	dataLocal, dataRemote := net.Pipe()

	c := &Client{log: discardLogger()}
	c.backendPool = pool.New(pool.WithRecycleTTL(config.ClientRecycleTTL))
	c.dataPool = pool.New()

	if err := c.backendPool.Add(backendLocal); err != nil {
		t.Fatalf("Add backend: %v", err)
	}
	if err := c.dataPool.Add(dataLocal); err != nil {
		t.Fatalf("Add data: %v", err)
	}

	go func() {
		buf := make([]byte, 16)
		for {
			if _, err := backendRemote.Read(buf); err != nil {
				return
			}
		}
	}()
	go func() {
		dataRemote.Close()
	}()

	done := make(chan struct{})
	go func() {
		c.proxyTask(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("proxyTask did not return")
	}

	if st := c.backendPool.Status(); st.Available != 0 {
		t.Fatalf("expected disconnected backend socket not returned, got Available=%d", st.Available)
	}
}
