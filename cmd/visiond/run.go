package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/vision-project/vision-node/consensus/powengine"
	"github.com/vision-project/vision-node/core/builder"
	"github.com/vision-project/vision-node/core/chainstore"
	"github.com/vision-project/vision-node/core/mempool"
	"github.com/vision-project/vision-node/core/receipts"
	"github.com/vision-project/vision-node/core/validator"
	"github.com/vision-project/vision-node/internal/chaintypes"
	"github.com/vision-project/vision-node/internal/config"
	"github.com/vision-project/vision-node/internal/identity"
	"github.com/vision-project/vision-node/internal/lifecycle"
	"github.com/vision-project/vision-node/miner"
	"github.com/vision-project/vision-node/p2p/gossip"
	"github.com/vision-project/vision-node/p2p/peermanager"
	"github.com/vision-project/vision-node/p2p/peerstore"
	"github.com/vision-project/vision-node/p2p/readiness"
	"github.com/vision-project/vision-node/p2p/server"
	"github.com/vision-project/vision-node/p2p/sync"
	"github.com/vision-project/vision-node/p2p/wire"
)

var runCommand = &cli.Command{
	Name:   "run",
	Usage:  "start the node",
	Flags:  []cli.Flag{dataDirFlag, nodeTagFlag, staticConfigFlag},
	Action: runAction,
}

// stopComponent adapts a plain stop channel to internal/lifecycle.Component,
// for the background loops (gossip's feed relay, the P2P server's body
// timeout sweep) that have no other shutdown hook of their own.
type stopComponent struct {
	name string
	ch   chan struct{}
}

func (c *stopComponent) Name() string { return c.name }
func (c *stopComponent) Shutdown(ctx context.Context) error {
	close(c.ch)
	return nil
}

// serverRef indirects sync.PeerSource and gossip.Broadcaster through a
// pointer set after *server.Server exists, breaking the construction cycle:
// the Sync Engine and Gossip both need a live connection sender at
// construction time, but the Server needs the Sync Engine (as ChainSync)
// at its own construction time.
type serverRef struct {
	srv *server.Server
}

func (r *serverRef) RequestHeaders(peerID string, req *wire.GetHeaders) (*wire.Headers, error) {
	return r.srv.RequestHeaders(peerID, req)
}

func (r *serverRef) RequestBlocks(peerID string, req *wire.GetBlocks) (*wire.Blocks, error) {
	return r.srv.RequestBlocks(peerID, req)
}

func (r *serverRef) SendTo(peerID string, msg any) error {
	return r.srv.SendTo(peerID, msg)
}

func runAction(c *cli.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return configErr(err)
	}
	if v := c.String(dataDirFlag.Name); v != "" {
		cfg.DataDir = v
	}
	cfg.Static, err = config.LoadStaticConfig(c.String(staticConfigFlag.Name))
	if err != nil {
		return configErr(err)
	}

	id, err := identity.Load(cfg.DataDir, c.String(nodeTagFlag.Name))
	if err != nil {
		return configErr(fmt.Errorf("loading identity: %w", err))
	}
	log.Info("Node identity", "vision_address", id.VisionAddress())

	store, err := chainstore.Open(cfg.DataDir)
	if err != nil {
		return storageErr(err)
	}

	if _, hasTip, err := store.ReadTip(); err != nil {
		return storageErr(err)
	} else if !hasTip {
		genesis, err := buildGenesisBlock(cfg.Static)
		if err != nil {
			return configErr(err)
		}
		if err := store.ApplyBlock(genesis, nil, nil, nil); err != nil {
			return storageErr(fmt.Errorf("applying genesis: %w", err))
		}
		log.Info("Committed genesis block", "hash", genesis.ID)
	}

	gHash, err := genesisHash(cfg.Static)
	if err != nil {
		return configErr(err)
	}
	powEngine := powengine.New(cfg.Static.ChainID, [32]byte(gHash))

	journal := receipts.New(store)
	val := validator.New(store, powEngine, journal)

	pool := mempool.New(cfg.MempoolMax, &storeAccountView{store: store})
	resetCh := make(chan *chaintypes.Block, 16)
	store.SubscribeTipChanged(resetCh)
	go func() {
		for block := range resetCh {
			ids := make([]chaintypes.Hash, 0, len(block.Txs))
			for _, tx := range block.Txs {
				ids = append(ids, tx.ID())
			}
			pool.Reset(ids)
		}
	}()

	book, err := peerstore.Open(cfg.DataDir, peerbookScope(cfg))
	if err != nil {
		return storageErr(err)
	}
	peerMgr := peermanager.New(book, cfg.MinPeers, cfg.MinPeers*4, false)

	checkpoints, err := loadCheckpoints(cfg.Static)
	if err != nil {
		return configErr(err)
	}

	srcRef := &serverRef{}
	syncEngine := sync.New(store, val, powEngine, peerMgr, srcRef, book, checkpoints)
	gsp := gossip.New(peerMgr, srcRef)

	var advertisedIP string
	var advertisedPort *uint16
	if !cfg.DisableP2P {
		if extIP, err := peermanager.ExternalAddress(); err != nil {
			log.Debug("NAT-PMP external address discovery failed, node will advertise no address", "err", err)
		} else if mapped, err := peermanager.MapPort(cfg.P2PPort, cfg.P2PPort); err != nil {
			log.Debug("NAT-PMP port mapping failed, node will advertise no address", "err", err)
		} else {
			advertisedIP = extIP.String()
			port := uint16(mapped)
			advertisedPort = &port
			log.Info("NAT-PMP mapping established", "external_ip", advertisedIP, "external_port", mapped)
		}
	}

	checkpointHeight, checkpointHash := latestCheckpoint(checkpoints)
	srv := server.New(server.Options{
		Config:           cfg,
		Identity:         id,
		GenesisHash:      gHash,
		CheckpointHeight: checkpointHeight,
		CheckpointHash:   checkpointHash,
		AdvertisedIP:     advertisedIP,
		AdvertisedPort:   advertisedPort,
		Peers:            peerMgr,
		Book:             book,
		Sync:             syncEngine,
		Mempool:          pool,
		Gossip:           gsp,
	})
	srcRef.srv = srv

	blockBuilder := builder.New(store, pool, id.PublicKey, defaultMaxTxCount, defaultMaxWeight)
	numWorkers := 1
	m := miner.New(store, blockBuilder, val, powEngine, numWorkers)

	coordinator := lifecycle.New(time.Duration(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !cfg.DisableP2P {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.P2PPort))
		if err != nil {
			return runtimeErr(fmt.Errorf("listening on p2p port %d: %w", cfg.P2PPort, err))
		}
		go func() {
			if err := srv.Serve(ln); err != nil {
				log.Debug("P2P listener stopped", "err", err)
			}
		}()
		coordinator.Register(srv)

		maintenanceStop := &stopComponent{name: "p2p/server maintenance", ch: make(chan struct{})}
		go server.RunMaintenance(srv, maintenanceStop.ch)
		coordinator.Register(maintenanceStop)

		gossipStop := &stopComponent{name: "p2p/gossip", ch: make(chan struct{})}
		tipCh := make(chan *chaintypes.Block, 1)
		txCh := make(chan *chaintypes.Transaction, 64)
		store.SubscribeTipChanged(tipCh)
		pool.SubscribeInserted(txCh)
		go gossip.RunFeeds(gsp, tipCh, txCh, gossipStop.ch)
		coordinator.Register(gossipStop)

		for _, addr := range cfg.BootstrapPeers {
			addr := addr
			go func() {
				if _, err := srv.Dial(ctx, addr); err != nil {
					log.Debug("Bootstrap dial failed", "addr", addr, "err", err)
				}
			}()
		}
	}

	if !cfg.MinerDisabled {
		gate := readiness.New(peerMgr, cfg.MinPeers,
			time.Duration(cfg.ReadinessCheckInterval)*time.Second,
			time.Duration(cfg.ReadinessMaxWait)*time.Second,
			cfg.AllowBootstrapAlone || cfg.DisableP2P)
		go func() {
			if !gate.Await(ctx) {
				log.Warn("Readiness Gate aborted, miner will not start")
				return
			}
			if _, err := blockBuilder.Rebuild(); err != nil {
				log.Warn("Initial block template build failed", "err", err)
			}
			m.Start()
		}()
		coordinator.Register(minerComponent{m})
	}

	if code := coordinator.Run(ctx, store); code != 0 {
		return storageErr(fmt.Errorf("chain store flush failed during shutdown"))
	}
	return nil
}

// minerComponent adapts *miner.Miner to internal/lifecycle.Component.
type minerComponent struct{ m *miner.Miner }

func (minerComponent) Name() string { return "miner" }
func (c minerComponent) Shutdown(ctx context.Context) error {
	c.m.Stop()
	return nil
}

// defaultMaxTxCount and defaultMaxWeight bound a block template (spec.md
// §4.6); neither is exposed as a knob yet since no operator need has come
// up for tuning them independently of the mempool's own cap.
const (
	defaultMaxTxCount = 5000
	defaultMaxWeight  = 10_000_000
)

func loadCheckpoints(sc config.StaticConfig) ([]sync.Checkpoint, error) {
	out := make([]sync.Checkpoint, 0, len(sc.Checkpoints))
	for _, cp := range sc.Checkpoints {
		raw, err := hex.DecodeString(cp.Hash)
		if err != nil {
			return nil, fmt.Errorf("checkpoint at height %d has invalid hash %q: %w", cp.Height, cp.Hash, err)
		}
		if len(raw) != chaintypes.HashLength {
			return nil, fmt.Errorf("checkpoint at height %d hash %q must decode to %d bytes", cp.Height, cp.Hash, chaintypes.HashLength)
		}
		out = append(out, sync.Checkpoint{Height: cp.Height, Hash: chaintypes.BytesToHash(raw)})
	}
	return out, nil
}

// latestCheckpoint returns the highest-height embedded checkpoint, used as
// the handshake's bootstrap_checkpoint_height/hash (spec.md §4.11); zero
// values if none are configured.
func latestCheckpoint(checkpoints []sync.Checkpoint) (uint64, chaintypes.Hash) {
	var height uint64
	var hash chaintypes.Hash
	for _, cp := range checkpoints {
		if cp.Height >= height {
			height = cp.Height
			hash = cp.Hash
		}
	}
	return height, hash
}
