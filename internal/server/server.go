// Package server implements the Server side of the tunnel: it accepts
// control channels from Clients, accepts Client-originated data sockets
// into a shared pool, and relays User connections through paired data
// sockets.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rtcplabs/rtcp/internal/config"
	"github.com/rtcplabs/rtcp/pkg/metrics"
	"github.com/rtcplabs/rtcp/pkg/pool"
)

// Server owns the process-wide data-socket pool and the set of live
// control channels. There is exactly one Server per process.
type Server struct {
	log  *logrus.Logger
	host string // configured rewrite Host, grounded on the original prototype's hardcoded rewrite target

	dataPool *pool.Pool
	Metrics  metrics.Counters

	mu             sync.Mutex
	channels       map[string]*controlChannel
	dataListenOnce sync.Once
	dataListenErr  error

	// runCtx is the context passed to Run, scoped to the whole process
	// rather than any single control channel. The data listener and pool
	// must outlive any one Client's control channel, so ensureDataListener
	// binds its lifetime to this context instead of the caller's.
	runCtx context.Context
}

// New constructs a Server. rewriteHost is the value substituted for the
// Host header on the request direction of every relayed HTTP request (see
// pkg/httphead and internal/server/session.go).
func New(log *logrus.Logger, rewriteHost string) *Server {
	return &Server{
		log:      log,
		host:     rewriteHost,
		dataPool: pool.New(pool.WithCapacity(config.DataPoolCapacity)),
		channels: make(map[string]*controlChannel),
	}
}

// Run binds the control listener and blocks accepting control channels
// until ctx is canceled. The data listener is bound later, by
// ensureDataListener, when the first control channel reaches Running.
func (s *Server) Run(ctx context.Context) error {
	s.runCtx = ctx

	controlLn, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", config.ControlPort))
	if err != nil {
		return err
	}
	defer controlLn.Close()

	go func() {
		<-ctx.Done()
		controlLn.Close()
	}()

	s.log.WithField("port", config.ControlPort).Info("control listener started")

	for {
		conn, err := controlLn.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.WithError(err).Warn("control accept failed")
				return err
			}
		}
		cc := newControlChannel(ctx, s, conn)
		s.trackChannel(cc)
		go cc.run()
	}
}

// ensureDataListener lazily starts the single process-wide data-port
// listener the first time any control channel reaches Running (§9.1's
// resolution: one listener and one pool shared by every control channel,
// not one per channel). It is bound to Run's process-wide context, never
// to the calling control channel's context, so one Client disconnecting
// never tears down the shared listener for every other Client.
func (s *Server) ensureDataListener() error {
	s.dataListenOnce.Do(func() {
		ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", config.DataPort))
		if err != nil {
			s.dataListenErr = err
			return
		}
		s.log.WithField("port", config.DataPort).Info("data listener started")
		go s.acceptDataSockets(s.runCtx, ln)
	})
	return s.dataListenErr
}

func (s *Server) acceptDataSockets(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if err := s.dataPool.Add(conn); err != nil {
			s.log.WithError(err).Debug("data pool full, closing incoming data socket")
			conn.Close()
			continue
		}
	}
}

func (s *Server) trackChannel(cc *controlChannel) {
	s.mu.Lock()
	s.channels[cc.id] = cc
	s.mu.Unlock()
}

func (s *Server) untrackChannel(id string) {
	s.mu.Lock()
	delete(s.channels, id)
	s.mu.Unlock()
}

// newChannelID generates a tracking id for a control channel, distinct
// from any connect-id carried on the wire.
func newChannelID() string {
	return uuid.NewString()
}
