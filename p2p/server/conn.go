package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/vision-project/vision-node/internal/chaintypes"
	"github.com/vision-project/vision-node/p2p/peermanager"
	"github.com/vision-project/vision-node/p2p/wire"
)

// conn is one live peer connection. Outbound requests are serialized
// (reqMu): the wire protocol carries no request id, so at most one
// GetHeaders/GetBlocks round trip may be outstanding at a time, matching
// the single-batch-per-peer model p2p/sync's body pipeline already assumes.
type conn struct {
	server *Server
	nc     net.Conn
	nodeID string

	writeMu sync.Mutex

	reqMu   sync.Mutex
	mu      sync.Mutex
	pending chan any
}

// handshake performs the version/compatibility/anti-replay exchange
// (spec.md §4.11) and, on success, registers the connection and returns it
// ready for run(). inbound distinguishes which side speaks first only for
// logging; both sides send their handshake immediately and then read the
// peer's, since the exchange is symmetric.
func (s *Server) handshake(nc net.Conn, inbound bool) (*conn, error) {
	if err := nc.SetDeadline(time.Now().Add(peermanager.HandshakeTimeout)); err != nil {
		return nil, err
	}

	local := s.localHandshake(s.sync.Height())
	if err := wire.WriteMessage(nc, local); err != nil {
		return nil, fmt.Errorf("server: sending handshake: %w", err)
	}

	msg, err := wire.ReadMessage(nc)
	if err != nil {
		return nil, fmt.Errorf("server: reading handshake: %w", err)
	}
	remote, ok := msg.(*wire.Handshake)
	if !ok {
		return nil, fmt.Errorf("server: expected Handshake, got %T", msg)
	}

	if err := s.checkCompatible(remote); err != nil {
		return nil, err
	}
	if remote.NodeID == s.identity.NodeID {
		return nil, fmt.Errorf("server: refusing to connect to self")
	}
	if !s.nonces.Check(remote.NodeID, remote.NodeNonce, time.Now()) {
		return nil, fmt.Errorf("server: handshake replay detected from %s", remote.NodeID)
	}

	if err := nc.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}

	direction := "outbound"
	if inbound {
		direction = "inbound"
	}
	log.Debug("Server completed handshake", "node_id", remote.NodeID, "direction", direction, "chain_height", remote.ChainHeight)

	s.peers.RecordConnected(remote.NodeID, true, remote.ChainHeight, time.Now())
	s.persistPeer(remote, nc)

	c := &conn{server: s, nc: nc, nodeID: remote.NodeID}
	s.registerConn(c)
	return c, nil
}

// run drives the connection's read loop until it errors or is closed. It
// blocks, so callers spawn it in its own goroutine.
func (c *conn) run() {
	defer c.close()
	for {
		msg, err := wire.ReadMessage(c.nc)
		if err != nil {
			log.Debug("Server connection read failed, closing", "node_id", c.nodeID, "err", err)
			return
		}
		c.dispatch(msg)
	}
}

func (c *conn) close() {
	_ = c.nc.Close()
	c.mu.Lock()
	if c.pending != nil {
		close(c.pending)
		c.pending = nil
	}
	c.mu.Unlock()
	c.server.dropConn(c)
	c.server.gossipForget(c.nodeID)
}

// send writes msg to the connection, serialized against concurrent sends
// from request() replies and outbound gossip.
func (c *conn) send(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.nc.SetWriteDeadline(time.Now().Add(peermanager.IdleTimeout)); err != nil {
		return err
	}
	return wire.WriteMessage(c.nc, msg)
}

// request sends msg and blocks for the next Headers/Blocks reply, or until
// requestTimeout elapses.
func (c *conn) request(msg any) (any, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	respCh := make(chan any, 1)
	c.mu.Lock()
	c.pending = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending == respCh {
			c.pending = nil
		}
		c.mu.Unlock()
	}()

	if err := c.send(msg); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("server: connection to %s closed mid-request", c.nodeID)
		}
		return resp, nil
	case <-time.After(requestTimeout):
		if err := c.server.book.RecordFailure(c.nodeID, uint64(time.Now().Unix()), "request_timeout"); err != nil {
			log.Debug("Server failed recording request timeout", "node_id", c.nodeID, "err", err)
		}
		return nil, fmt.Errorf("server: request to %s timed out", c.nodeID)
	}
}

// deliver hands a Headers/Blocks response to a waiting request(), if any.
// An unsolicited response (no pending request) is logged and dropped.
func (c *conn) deliver(msg any) {
	c.mu.Lock()
	ch := c.pending
	c.mu.Unlock()
	if ch == nil {
		log.Debug("Server dropped unsolicited response", "node_id", c.nodeID, "type", fmt.Sprintf("%T", msg))
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (c *conn) dispatch(msg any) {
	switch m := msg.(type) {
	case *wire.Headers:
		c.deliver(m)
	case *wire.Blocks:
		c.deliver(m)

	case *wire.GetHeaders:
		resp, err := c.server.sync.HandleGetHeaders(m)
		if err != nil {
			log.Debug("Server failed answering GetHeaders", "node_id", c.nodeID, "err", err)
			return
		}
		if err := c.send(resp); err != nil {
			log.Debug("Server failed sending Headers", "node_id", c.nodeID, "err", err)
		}

	case *wire.GetBlocks:
		resp, err := c.server.sync.HandleGetBlocks(m)
		if err != nil {
			log.Debug("Server failed answering GetBlocks", "node_id", c.nodeID, "err", err)
			return
		}
		if err := c.send(resp); err != nil {
			log.Debug("Server failed sending Blocks", "node_id", c.nodeID, "err", err)
		}

	case *wire.AnnounceBlock:
		c.server.peers.Touch(c.nodeID, m.Height, time.Now())
		needsHeaderSync, err := c.server.sync.HandleAnnounce(c.nodeID, m)
		if err != nil {
			log.Debug("Server failed handling AnnounceBlock", "node_id", c.nodeID, "hash", m.Hash, "err", err)
			return
		}
		if needsHeaderSync {
			go c.server.syncFrom(c.nodeID)
		}

	case *wire.InvTx:
		var want []chaintypes.Hash
		for _, id := range m.TxIDs {
			if !c.server.mempool.Has(id) {
				want = append(want, id)
			}
		}
		if len(want) == 0 {
			return
		}
		if err := c.send(&wire.GetData{TxIDs: want}); err != nil {
			log.Debug("Server failed sending GetData", "node_id", c.nodeID, "err", err)
		}

	case *wire.GetData:
		for _, id := range m.TxIDs {
			tx, ok := c.server.mempool.Get(id)
			if !ok {
				continue
			}
			raw, err := encodeTx(tx)
			if err != nil {
				log.Debug("Server failed encoding tx for GetData reply", "node_id", c.nodeID, "txid", id, "err", err)
				continue
			}
			if err := c.send(&wire.Tx{Raw: raw}); err != nil {
				log.Debug("Server failed sending Tx", "node_id", c.nodeID, "err", err)
				return
			}
		}

	case *wire.Tx:
		tx, err := decodeTx(m.Raw)
		if err != nil {
			log.Debug("Server failed decoding inbound Tx", "node_id", c.nodeID, "err", err)
			return
		}
		c.server.mempool.Insert(tx)

	default:
		log.Debug("Server received unhandled message type", "node_id", c.nodeID, "type", fmt.Sprintf("%T", m))
	}
}
