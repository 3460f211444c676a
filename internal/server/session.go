package server

import (
	"io"
	"net"
	"time"

	"github.com/rtcplabs/rtcp/internal/config"
	"github.com/rtcplabs/rtcp/internal/splice"
	"github.com/rtcplabs/rtcp/pkg/httphead"
	"github.com/rtcplabs/rtcp/pkg/pool"
)

// handleUser implements the User arrival protocol (§4.4): notify on an
// empty pool, checkout (discarding stale entries), splice, then evict the
// checked-out item.
//
// A checked-out item is never returned to the pool. splice.Splice closes
// both connections as soon as either direction finishes, so by the time
// a session ends, item.Conn is already closed regardless of which side
// finished first; handing it back out would only ever give the next User
// a dead socket. It also mirrors the Client's own policy for this same
// physical connection (internal/client/proxy.go never returns a data
// socket to its pool either), so the pair is single-use on both ends.
// The pool stays stocked by the Client dialing a fresh data socket for
// every NewConnection signal, not by recycling.
func (cc *controlChannel) handleUser(userConn net.Conn) {
	defer userConn.Close()

	if cc.srv.dataPool.Status().Available == 0 {
		select {
		case cc.mailbox <- struct{}{}:
		default:
			cc.log.Debug("notifier mailbox full, dropping signal")
			cc.srv.Metrics.IncNotifierDropped()
		}
	}

	item, err := cc.checkoutFreshItem()
	if err != nil {
		cc.log.WithError(err).Debug("aborted waiting for a pooled socket")
		return
	}
	cc.srv.Metrics.IncSessionsPaired()

	// The rewrite is applied to the User->pooled direction (the request
	// headed toward the Backend), not the response path: this corrects an
	// internal inconsistency between §4.6's direction label and §8's own
	// end-to-end scenarios (scenario 1 relays a non-HTTP echo payload
	// pooled->User; scenario 4 requires Host/X-Forwarded-For to reach the
	// Backend). It also matches the original prototype's
	// HttpTransformer, which rewrites the connection it accepts before
	// relaying onward.
	userIP := remoteIP(userConn)
	rewrite := func(dst io.Writer, src io.Reader) error {
		return rewriteLoop(dst, src, cc.srv.host, userIP)
	}

	res := splice.Splice(userConn, item.Conn, rewrite, nil)
	cc.log.WithField("first_closed", res.FirstClosed).Debug("user session ended")

	item.Disconnected = true
	cc.srv.dataPool.Take(item)
	cc.srv.Metrics.IncSocketsEvicted()
}

// checkoutFreshItem loops pool.Get, evicting entries whose LastReleasedAt
// exceeds the Server's stale guard, until a usable item is found or ctx is
// done.
func (cc *controlChannel) checkoutFreshItem() (*pool.Item, error) {
	for {
		item, err := cc.srv.dataPool.Get(cc.ctx)
		if err != nil {
			return nil, err
		}
		if pool.StaleOlderThan(item, config.ServerStaleGuard, time.Now()) {
			cc.srv.dataPool.Take(item)
			item.Conn.Close()
			cc.srv.Metrics.IncSocketsEvicted()
			continue
		}
		return item, nil
	}
}

// httpMethodPrefixes sniffs whether a connection carries HTTP/1.x requests
// at all: a non-goal-free relay also carries arbitrary raw TCP traffic
// (see the Testable Scenarios' plain echo backend), which the head parser
// must never be forced onto.
var httpMethodPrefixes = []string{
	"GET ", "POST ", "PUT ", "DELETE ", "HEAD ", "OPTIONS ", "PATCH ", "CONNECT ", "TRACE ",
}

func looksLikeHTTPRequest(b []byte) bool {
	for _, m := range httpMethodPrefixes {
		if len(b) >= len(m) && string(b[:len(m)]) == m {
			return true
		}
	}
	return false
}

// rewriteLoop sniffs the first chunk off src: if it opens with an HTTP
// method token, every request on the connection is parsed and rewritten
// (Host, X-Forwarded-For) before being forwarded to dst, looping across
// keep-alive requests until src ends. Otherwise the connection is relayed
// byte-for-byte with no parsing attempted, for its entire lifetime.
func rewriteLoop(dst io.Writer, src io.Reader, host, forwardedFor string) error {
	buf := make([]byte, 4096)
	n, rerr := src.Read(buf)
	if n == 0 {
		if rerr == io.EOF {
			return nil
		}
		return rerr
	}

	if !looksLikeHTTPRequest(buf[:n]) {
		if _, werr := dst.Write(buf[:n]); werr != nil {
			return werr
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return rerr
		}
		_, cerr := io.Copy(dst, src)
		return cerr
	}

	p := httphead.NewParser()
	first := append([]byte{}, buf[:n]...)
	for {
		ferr := p.Feed(first)
		first = nil
		switch ferr {
		case nil:
			out := httphead.Rewrite(p, host, forwardedFor)
			if _, werr := dst.Write(out); werr != nil {
				return werr
			}
			p.Reset()
			// A single read can carry a full pipelined request past the one
			// just rewritten (request 1 plus all of request 2, in the same
			// chunk that also signaled EOF): Reset preserves that leftover
			// in the parser's buffer, so loop straight back to Feed(nil)
			// before falling through to the rerr/read handling below, which
			// would otherwise return and drop it unprocessed.
			continue
		case httphead.ErrNeedMore:
			// keep accumulating
		default:
			return ferr
		}

		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return rerr
		}
		n, rerr = src.Read(buf)
		if n > 0 {
			first = buf[:n]
		}
		if n == 0 && rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return rerr
		}
	}
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
