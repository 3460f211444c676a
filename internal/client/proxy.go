package client

import (
	"context"

	"github.com/rtcplabs/rtcp/internal/splice"
)

// proxyTask answers one NewConnection signal: checkout a Backend socket
// and a Data socket, splice them, then apply the Client-side reuse policy
// (§4.5 step 4).
func (c *Client) proxyTask(ctx context.Context) {
	backendItem, err := c.backendPool.Get(ctx)
	if err != nil {
		c.log.WithError(err).Warn("failed to obtain a backend socket")
		return
	}
	dataItem, err := c.dataPool.Get(ctx)
	if err != nil {
		c.log.WithError(err).Warn("failed to obtain a data socket")
		backendItem.Disconnected = true
		c.backendPool.Return(backendItem)
		return
	}

	res := splice.Splice(backendItem.Conn, dataItem.Conn, nil, nil)

	// Data sockets are single-use: each NewConnection dials a fresh one,
	// so the checked-out item is always discarded, never returned.
	c.dataPool.Take(dataItem)

	if res.FirstClosed == splice.BToA {
		// the data socket (the tunnel back to the Server) closed first
		backendItem.Disconnected = true
	}
	c.backendPool.Return(backendItem)
}
