// Package gossip implements block/tx announce and getdata relay with
// per-peer dedup and rate limiting (spec.md §4.13). It sits downstream of
// the Chain Store and Mempool's event.Feed notifications, the same
// subscribe-to-feed shape core/mempool's own insertFeed/removeFeed use, and
// upstream of whatever owns the live per-peer socket (wired at the
// cmd/visiond level behind the Broadcaster interface).
package gossip

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"

	"github.com/vision-project/vision-node/internal/chaintypes"
	"github.com/vision-project/vision-node/p2p/peermanager"
	"github.com/vision-project/vision-node/p2p/wire"
)

// defaultPerPeerSeenCapacity sizes each peer's dedup filter generously
// above the mempool's and chain's working set so it almost never needs
// re-expanding mid-session.
const defaultPerPeerSeenCapacity = 65536

// Broadcaster is the boundary into a connected peer's live socket.
type Broadcaster interface {
	SendTo(peerID string, msg any) error
}

// Gossip relays new tips and pending transactions to connected peers,
// using one SeenFilter per peer so a peer is never told about the same
// block or transaction twice, and a global token bucket so a burst of new
// tips or transactions can't turn into an unbounded announce storm (spec.md
// §4.13 "Global cap on announce fan-out per second").
type Gossip struct {
	peers *peermanager.Manager
	send  Broadcaster

	mu       sync.Mutex
	seenTx   map[string]*SeenFilter
	seenBlk  map[string]*SeenFilter

	announceBudget *rate.Limiter
	inbound        *IPLimiter
}

// New builds a Gossip relay. peers supplies the set of connected peers to
// fan out to; send is the outbound socket boundary.
func New(peers *peermanager.Manager, send Broadcaster) *Gossip {
	return &Gossip{
		peers:          peers,
		send:           send,
		seenTx:         make(map[string]*SeenFilter),
		seenBlk:        make(map[string]*SeenFilter),
		announceBudget: rate.NewLimiter(rate.Limit(DefaultAnnouncePerSecond), DefaultAnnouncePerSecond),
		inbound:        NewIPLimiter(DefaultRatePerSecond, DefaultBurst),
	}
}

func (g *Gossip) filterFor(registry map[string]*SeenFilter, peerID string) *SeenFilter {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := registry[peerID]
	if !ok {
		// NewSeenFilter only errors on a degenerate (zero) capacity, which
		// defaultPerPeerSeenCapacity never is.
		f, _ = NewSeenFilter(defaultPerPeerSeenCapacity)
		registry[peerID] = f
	}
	return f
}

// AllowInbound reports whether one more inbound gossip message from ip may
// be processed right now (spec.md §4.13 rate limits).
func (g *Gossip) AllowInbound(ip string) bool {
	return g.inbound.Allow(ip)
}

// AnnounceTip broadcasts a new tip to every connected peer that hasn't
// already been told about it (spec.md §4.13 "Block announce").
func (g *Gossip) AnnounceTip(block *chaintypes.Block) {
	if !g.announceBudget.Allow() {
		log.Debug("Gossip dropped tip announce, global budget exhausted", "id", block.ID)
		return
	}
	ann := &wire.AnnounceBlock{Height: block.Header.Number, Hash: block.ID, Prev: block.Header.ParentHash}
	for _, p := range g.peers.Connected() {
		if !p.Compatible {
			continue
		}
		filter := g.filterFor(g.seenBlk, p.NodeID)
		if !filter.Mark(block.ID) {
			continue
		}
		if err := g.send.SendTo(p.NodeID, ann); err != nil {
			log.Debug("Gossip failed to announce tip", "peer", p.NodeID, "id", block.ID, "err", err)
		}
	}
}

// AnnounceTx relays a newly admitted transaction's id to every connected
// peer that hasn't already seen it (spec.md §4.13 "Transaction relay").
func (g *Gossip) AnnounceTx(tx *chaintypes.Transaction) {
	id := tx.ID()
	inv := &wire.InvTx{TxIDs: []chaintypes.Hash{id}}
	for _, p := range g.peers.Connected() {
		if !p.Compatible {
			continue
		}
		filter := g.filterFor(g.seenTx, p.NodeID)
		if !filter.Mark(id) {
			continue
		}
		if err := g.send.SendTo(p.NodeID, inv); err != nil {
			log.Debug("Gossip failed to relay tx inventory", "peer", p.NodeID, "id", id, "err", err)
		}
	}
}

// RunFeeds subscribes to the Chain Store's tip-change feed and the
// Mempool's insertion feed and relays both until stop is closed. Run it in
// its own goroutine; it never returns on its own.
func RunFeeds(g *Gossip, tipCh <-chan *chaintypes.Block, txCh <-chan *chaintypes.Transaction, stop <-chan struct{}) {
	for {
		select {
		case block := <-tipCh:
			g.AnnounceTip(block)
		case tx := <-txCh:
			g.AnnounceTx(tx)
		case <-stop:
			return
		}
	}
}

// ForgetPeer drops a disconnected peer's dedup filters so memory doesn't
// accumulate across churn.
func (g *Gossip) ForgetPeer(peerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seenTx, peerID)
	delete(g.seenBlk, peerID)
}
