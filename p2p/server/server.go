package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/vision-project/vision-node/core/mempool"
	"github.com/vision-project/vision-node/internal/chaintypes"
	"github.com/vision-project/vision-node/internal/config"
	"github.com/vision-project/vision-node/internal/identity"
	"github.com/vision-project/vision-node/p2p/gossip"
	"github.com/vision-project/vision-node/p2p/peermanager"
	"github.com/vision-project/vision-node/p2p/peerstore"
	"github.com/vision-project/vision-node/p2p/wire"
)

// requestTimeout bounds how long RequestHeaders/RequestBlocks waits for a
// matching response before treating the peer as unresponsive. It sits above
// HandshakeTimeout since a body batch can legitimately take longer to
// assemble than a handshake. A var, not a const, so tests can shrink it.
var requestTimeout = 20 * time.Second

// ChainSync is the subset of *sync.Engine the server dispatches inbound
// protocol messages to and drives outbound sync through.
type ChainSync interface {
	HandleGetHeaders(req *wire.GetHeaders) (*wire.Headers, error)
	HandleGetBlocks(req *wire.GetBlocks) (*wire.Blocks, error)
	HandleAnnounce(peerID string, ann *wire.AnnounceBlock) (bool, error)
	FetchHeaders(peerID string) ([]chaintypes.Header, error)
	RunBodyTimeouts(now time.Time)
	Height() uint64
}

// Server dials and accepts P2P connections, performs the handshake exchange
// (spec.md §4.11), and gives p2p/sync.PeerSource and p2p/gossip.Broadcaster
// a live net.Conn to work against. It owns no consensus logic itself: every
// inbound protocol message is dispatched to Sync or Mempool.
type Server struct {
	cfg      *config.Config
	identity *identity.Identity

	genesisHash      chaintypes.Hash
	role             peerstore.Role
	checkpointHeight uint64
	checkpointHash   chaintypes.Hash
	advertisedIP     string
	advertisedPort   *uint16

	peers   *peermanager.Manager
	book    *peerstore.Store
	sync    ChainSync
	mempool *mempool.Pool
	gossip  *gossip.Gossip

	nonces *nonceCache

	listener net.Listener

	mu    sync.Mutex
	conns map[string]*conn
}

// Options bundles Server's construction-time dependencies, to keep New's
// signature from ballooning as the protocol grows.
type Options struct {
	Config      *config.Config
	Identity    *identity.Identity
	GenesisHash chaintypes.Hash
	Role        peerstore.Role

	CheckpointHeight uint64
	CheckpointHash   chaintypes.Hash

	AdvertisedIP   string
	AdvertisedPort *uint16

	Peers   *peermanager.Manager
	Book    *peerstore.Store
	Sync    ChainSync
	Mempool *mempool.Pool
	Gossip  *gossip.Gossip
}

// New builds a Server. It does not listen or dial until Serve/Dial is
// called.
func New(opts Options) *Server {
	role := opts.Role
	if role == "" {
		role = peerstore.RoleConstellation
	}
	return &Server{
		cfg:              opts.Config,
		identity:         opts.Identity,
		genesisHash:      opts.GenesisHash,
		role:             role,
		checkpointHeight: opts.CheckpointHeight,
		checkpointHash:   opts.CheckpointHash,
		advertisedIP:     opts.AdvertisedIP,
		advertisedPort:   opts.AdvertisedPort,
		peers:            opts.Peers,
		book:             opts.Book,
		sync:             opts.Sync,
		mempool:          opts.Mempool,
		gossip:           opts.Gossip,
		nonces:           newNonceCache(),
		conns:            make(map[string]*conn),
	}
}

// Serve accepts inbound connections on ln until ln is closed. It is meant
// to run in its own goroutine for the process lifetime.
func (s *Server) Serve(ln net.Listener) error {
	s.listener = ln
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleInbound(nc)
	}
}

func (s *Server) handleInbound(nc net.Conn) {
	c, err := s.handshake(nc, true)
	if err != nil {
		log.Debug("Server dropped inbound connection", "remote", nc.RemoteAddr(), "err", err)
		_ = nc.Close()
		return
	}
	log.Info("Server accepted inbound peer", "node_id", c.nodeID, "remote", nc.RemoteAddr())
	c.run()
}

// Dial opens an outbound connection to addr and performs the handshake.
// The returned node_id identifies the peer in the Peer Manager/PeerSource
// calls thereafter.
func (s *Server) Dial(ctx context.Context, addr string) (string, error) {
	d := net.Dialer{Timeout: peermanager.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("server: dialing %s: %w", addr, err)
	}
	c, err := s.handshake(nc, false)
	if err != nil {
		_ = nc.Close()
		return "", err
	}
	log.Info("Server established outbound peer", "node_id", c.nodeID, "remote", addr)
	go c.run()
	return c.nodeID, nil
}

func (s *Server) registerConn(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.conns[c.nodeID]; ok {
		_ = old.nc.Close()
	}
	s.conns[c.nodeID] = c
}

func (s *Server) dropConn(c *conn) {
	s.mu.Lock()
	if s.conns[c.nodeID] == c {
		delete(s.conns, c.nodeID)
	}
	s.mu.Unlock()
	s.peers.RecordDisconnected(c.nodeID, time.Now())
}

func (s *Server) connFor(peerID string) (*conn, error) {
	s.mu.Lock()
	c, ok := s.conns[peerID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("server: no live connection to %s", peerID)
	}
	return c, nil
}

// RequestHeaders implements p2p/sync.PeerSource.
func (s *Server) RequestHeaders(peerID string, req *wire.GetHeaders) (*wire.Headers, error) {
	c, err := s.connFor(peerID)
	if err != nil {
		return nil, err
	}
	resp, err := c.request(req)
	if err != nil {
		return nil, err
	}
	headers, ok := resp.(*wire.Headers)
	if !ok {
		return nil, fmt.Errorf("server: peer %s sent %T in reply to GetHeaders", peerID, resp)
	}
	return headers, nil
}

// RequestBlocks implements p2p/sync.PeerSource.
func (s *Server) RequestBlocks(peerID string, req *wire.GetBlocks) (*wire.Blocks, error) {
	c, err := s.connFor(peerID)
	if err != nil {
		return nil, err
	}
	resp, err := c.request(req)
	if err != nil {
		return nil, err
	}
	blocks, ok := resp.(*wire.Blocks)
	if !ok {
		return nil, fmt.Errorf("server: peer %s sent %T in reply to GetBlocks", peerID, resp)
	}
	return blocks, nil
}

// SendTo implements p2p/gossip.Broadcaster.
func (s *Server) SendTo(peerID string, msg any) error {
	c, err := s.connFor(peerID)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// defaultHealthScore is the neutral starting score for a peer the store has
// never seen before (peerstore's health range is 0-100).
const defaultHealthScore = 50

// defaultPeerStoreCapacity is spec.md §4.9's default Peer Book capacity.
const defaultPeerStoreCapacity = 1000

// persistPeer inserts or refreshes remote's Peer Store record after a
// successful handshake (spec.md §4.11 "insert each other into the Peer
// Store, subject to capacity").
func (s *Server) persistPeer(h *wire.Handshake, nc net.Conn) {
	peer, ok, err := s.book.Get(h.NodeID)
	if err != nil {
		log.Debug("Server failed reading peer record", "node_id", h.NodeID, "err", err)
		return
	}
	if !ok {
		peer = &peerstore.Peer{
			NodeID:      h.NodeID,
			HealthScore: defaultHealthScore,
			FirstSeenTS: uint64(time.Now().Unix()),
		}
	}
	peer.NodeTag = h.NodeTag
	peer.PublicKey = h.PublicKey
	peer.VisionAddress = h.VisionAddress
	peer.Role = peerstore.Role(h.Role)
	if host, portStr, splitErr := net.SplitHostPort(nc.RemoteAddr().String()); splitErr == nil {
		peer.LastIP = host
		if port, parseErr := strconv.Atoi(portStr); parseErr == nil {
			peer.LastPort = uint16(port)
		}
	}
	for _, seed := range s.cfg.Static.SeedPeers {
		if seed == h.NodeID {
			peer.IsSeed = true
			break
		}
	}

	if err := s.book.Put(peer); err != nil {
		log.Debug("Server failed persisting peer record", "node_id", h.NodeID, "err", err)
	}
	if _, err := s.book.EnforceCapacity(defaultPeerStoreCapacity); err != nil {
		log.Debug("Server failed enforcing peer store capacity", "err", err)
	}
}

func (s *Server) gossipForget(nodeID string) {
	if s.gossip != nil {
		s.gossip.ForgetPeer(nodeID)
	}
}

// syncFrom triggers a background headers-first catch-up against peerID,
// used when an AnnounceBlock arrives whose parent we don't recognize
// (spec.md §4.12 reorg trigger, §4.13 "peers that do not yet have the block
// request it").
func (s *Server) syncFrom(peerID string) {
	if _, err := s.sync.FetchHeaders(peerID); err != nil {
		log.Debug("Server background header sync failed", "peer", peerID, "err", err)
	}
}
