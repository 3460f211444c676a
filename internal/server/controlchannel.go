package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rtcplabs/rtcp/internal/config"
	"github.com/rtcplabs/rtcp/pkg/protocol"
)

// controlChannel is one Client's control connection and the tasks scoped
// to it: the access-port listener and the notifier mailbox. Its states
// are AwaitingInitialize, Running, Terminating, tracked implicitly by
// which of run's phases is executing.
type controlChannel struct {
	id   string
	conn net.Conn
	srv  *Server
	log  *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mailbox  chan struct{}
	accessLn net.Listener
	wg       sync.WaitGroup

	writeMu sync.Mutex
}

func newControlChannel(parentCtx context.Context, srv *Server, conn net.Conn) *controlChannel {
	ctx, cancel := context.WithCancel(parentCtx)
	id := newChannelID()
	return &controlChannel{
		id:      id,
		conn:    conn,
		srv:     srv,
		log:     srv.log.WithField("control_channel", id),
		ctx:     ctx,
		cancel:  cancel,
		mailbox: make(chan struct{}, config.NotifierMailboxCapacity),
	}
}

// run drives AwaitingInitialize -> Running -> Terminating for this channel.
func (cc *controlChannel) run() {
	defer cc.terminate()

	port, err := cc.awaitInitialize()
	if err != nil {
		cc.log.WithError(err).Debug("control channel ended awaiting initialize")
		return
	}

	if err := cc.startRunning(port); err != nil {
		cc.log.WithError(err).Warn("failed to enter running state")
		return
	}

	cc.readLoop()
}

// awaitInitialize reads frames until an Initialize(port) is seen. Any other
// well-formed frame is ignored (the sender guarantee in §5 is that a
// Client never sends anything but Initialize first); a read error or a
// codec-invalid frame ends the channel before it ever runs.
func (cc *controlChannel) awaitInitialize() (int, error) {
	var buf []byte
	tmp := make([]byte, 4096)
	for {
		msg, consumed, err := protocol.Deserialize(buf)
		if err == nil {
			buf = buf[consumed:]
			if msg.Type == protocol.Initialize {
				return int(msg.Port), nil
			}
			continue
		}
		if err != protocol.ErrNeedMore {
			return 0, err
		}

		n, rerr := cc.conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if rerr != nil {
			return 0, rerr
		}
	}
}

func (cc *controlChannel) startRunning(port int) error {
	if err := cc.srv.ensureDataListener(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return err
	}
	cc.accessLn = ln
	cc.log.WithField("access_port", port).Info("control channel running")

	cc.wg.Add(2)
	go cc.notify()
	go cc.acceptUsers()
	return nil
}

// notify drains the mailbox, writing one NewConnection frame per signal.
func (cc *controlChannel) notify() {
	defer cc.wg.Done()
	for {
		select {
		case <-cc.ctx.Done():
			return
		case <-cc.mailbox:
			msg := protocol.Message{Type: protocol.NewConnection, ID: uuid.NewString()}
			cc.writeMu.Lock()
			_, err := cc.conn.Write(protocol.Serialize(msg))
			cc.writeMu.Unlock()
			if err != nil {
				cc.log.WithError(err).Debug("failed writing new_connection frame")
				cc.cancel()
				return
			}
			cc.srv.Metrics.IncNotifierSent()
		}
	}
}

func (cc *controlChannel) acceptUsers() {
	defer cc.wg.Done()
	for {
		conn, err := cc.accessLn.Accept()
		if err != nil {
			return
		}
		go cc.handleUser(conn)
	}
}

// readLoop consumes frames sent by the Client after Initialize: Heartbeat
// is observed and discarded, CloseConnection is reserved-and-ignored,
// anything else is logged but does not end the channel. A read error or
// EOF tears the whole subtree down.
func (cc *controlChannel) readLoop() {
	var buf []byte
	tmp := make([]byte, 4096)
	for {
		for {
			msg, consumed, err := protocol.Deserialize(buf)
			if err == protocol.ErrNeedMore {
				break
			}
			if err != nil {
				cc.log.WithError(err).Warn("protocol violation on control channel")
				return
			}
			buf = buf[consumed:]
			switch msg.Type {
			case protocol.Heartbeat:
				cc.log.Debug("heartbeat received")
			case protocol.Initialize:
				cc.log.Debug("duplicate initialize ignored")
			case protocol.CloseConnection:
				cc.log.Debug("close_connection received, ignored")
			default:
				cc.log.WithField("type", msg.Type).Debug("unexpected frame type, ignored")
			}
		}

		n, err := cc.conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			return
		}
	}
}

// terminate tears down everything scoped to this control channel. The
// process-wide data listener and pool are never touched here.
func (cc *controlChannel) terminate() {
	cc.cancel()
	if cc.accessLn != nil {
		cc.accessLn.Close()
	}
	cc.conn.Close()
	cc.wg.Wait()
	cc.srv.untrackChannel(cc.id)
	cc.log.Info("control channel terminated")
}
