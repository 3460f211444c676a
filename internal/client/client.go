// Package client implements the Client side of the tunnel: it dials and
// maintains the control channel to the Server, and answers each
// NewConnection signal by pairing a Backend socket with a Server data
// socket and splicing them.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rtcplabs/rtcp/internal/config"
	"github.com/rtcplabs/rtcp/pkg/pool"
	"github.com/rtcplabs/rtcp/pkg/protocol"
)

// Client holds the two dial-on-miss pools (Backend, data-socket) and the
// configuration needed to reach the Server and the Backend.
type Client struct {
	cfg config.ClientConfig
	log *logrus.Logger

	backendPool *pool.Pool
	dataPool    *pool.Pool
}

// New constructs a Client from its parsed CLI configuration.
func New(cfg config.ClientConfig, log *logrus.Logger) *Client {
	c := &Client{cfg: cfg, log: log}

	c.backendPool = pool.New(
		pool.WithDialOnMiss(func(ctx context.Context) (net.Conn, error) {
			return dialWithContext(ctx, fmt.Sprintf("%s:%d", cfg.BackendIP, cfg.BackendPort))
		}),
		pool.WithRecycleTTL(config.ClientRecycleTTL),
	)
	c.dataPool = pool.New(
		pool.WithDialOnMiss(func(ctx context.Context) (net.Conn, error) {
			return dialWithContext(ctx, fmt.Sprintf("%s:%d", cfg.ServerHost, config.DataPort))
		}),
		pool.WithRecycleTTL(config.ClientRecycleTTL),
	)

	return c
}

func dialWithContext(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// Run dials the control channel and reconnects with a fixed backoff
// whenever it drops, until ctx is canceled.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.runOnce(ctx); err != nil {
			c.log.WithError(err).Warn("control channel ended, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.ReconnectBackoff):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.ServerHost, config.ControlPort)
	conn, err := dialWithContext(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	initMsg := protocol.Message{Type: protocol.Initialize, Port: uint16(c.cfg.AccessPort)}
	if _, err := conn.Write(protocol.Serialize(initMsg)); err != nil {
		return err
	}
	c.log.WithField("access_port", c.cfg.AccessPort).Info("control channel established")

	chCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go c.heartbeatLoop(chCtx, conn, errCh)
	go c.readLoop(chCtx, conn, errCh)

	return <-errCh
}

func (c *Client) heartbeatLoop(ctx context.Context, conn net.Conn, errCh chan<- error) {
	ticker := time.NewTicker(config.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := protocol.Message{Type: protocol.Heartbeat}
			if _, err := conn.Write(protocol.Serialize(msg)); err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn net.Conn, errCh chan<- error) {
	var buf []byte
	tmp := make([]byte, 4096)
	for {
		for {
			msg, consumed, err := protocol.Deserialize(buf)
			if err == protocol.ErrNeedMore {
				break
			}
			if err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
			buf = buf[consumed:]
			switch msg.Type {
			case protocol.NewConnection:
				go c.proxyTask(ctx)
			case protocol.Initialize, protocol.CloseConnection, protocol.Heartbeat:
				// ignored on the Client's read side
			}
		}

		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
			return
		}
	}
}
