// Package metrics re-exports github.com/ethereum/go-ethereum/metrics
// constructors under the names this repository's components import
// (metrics.NewRegisteredCounter("chain/blocks/accepted")).
// Emission points only — transport (Prometheus scrape endpoint, InfluxDB
// push) is the admin layer's concern, out of scope per spec.md §2.
package metrics

import gethmetrics "github.com/ethereum/go-ethereum/metrics"

// Counter is a monotonically increasing value.
type Counter = gethmetrics.Counter

// Gauge is a point-in-time value.
type Gauge = gethmetrics.Gauge

// Timer records durations plus a rate.
type Timer = gethmetrics.Timer

func NewRegisteredCounter(name string) Counter {
	return gethmetrics.NewRegisteredCounter(name, nil)
}

func NewRegisteredGauge(name string) Gauge {
	return gethmetrics.NewRegisteredGauge(name, nil)
}

func NewRegisteredTimer(name string) Timer {
	return gethmetrics.NewRegisteredTimer(name, nil)
}

// Block/consensus counters.
var (
	BlocksAccepted   = NewRegisteredCounter("chain/blocks/accepted")
	BlocksRejected   = NewRegisteredCounter("chain/blocks/rejected")
	ReorgsPerformed  = NewRegisteredCounter("chain/reorgs/performed")
	ReorgsFailed     = NewRegisteredCounter("chain/reorgs/failed")
	MempoolSize      = NewRegisteredGauge("mempool/size")
	MempoolRejected  = NewRegisteredCounter("mempool/rejected")
	PeersConnected   = NewRegisteredGauge("p2p/peers/connected")
	PeersCompatible  = NewRegisteredGauge("p2p/peers/compatible")
	HandshakeFailed  = NewRegisteredCounter("p2p/handshake/failed")
	BlocksMined      = NewRegisteredCounter("miner/blocks/found")
	MiningHashRate   = NewRegisteredGauge("miner/hashrate")
	SyncBlocksPulled = NewRegisteredCounter("sync/blocks/pulled")
	GossipRateLimited = NewRegisteredCounter("gossip/rate_limited")
)
