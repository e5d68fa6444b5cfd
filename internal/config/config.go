// Package config loads node configuration from the environment variables
// named in spec.md §6, with an optional TOML overlay (naoina/toml, the
// teacher's config-file library) for static genesis/checkpoint/seed data
// that does not belong in shell environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/naoina/toml"
)

// Config is the fully-resolved node configuration.
type Config struct {
	HTTPPort       int
	P2PPort        int
	DataDir        string
	PeerbookScope  string
	MempoolMax     int
	MinPeers       int
	DisableP2P     bool
	MinerDisabled  bool
	AdminToken     string
	BootstrapPeers []string

	// AllowBootstrapAlone permits the Readiness Gate to unlock mining with
	// zero connected peers (spec.md §4.14); intended only for genesis nodes.
	AllowBootstrapAlone bool
	// ReadinessCheckInterval is how often the gate re-polls consensus_quorum
	// while waiting (spec.md §4.14, default 5s).
	ReadinessCheckInterval int
	// ReadinessMaxWait bounds how long the gate waits before proceeding
	// with a loud warning; 0 means wait indefinitely (spec.md §4.14).
	ReadinessMaxWait int

	Static StaticConfig
}

// StaticConfig is the TOML-loaded overlay: genesis parameters, embedded
// checkpoints and a seed-peer list (spec.md §4.12 "Checkpoints", GLOSSARY
// "Seed peer").
type StaticConfig struct {
	ChainID          string            `toml:"chain_id"`
	GenesisPowHash   string            `toml:"genesis_pow_hash"`
	BootstrapPrefix  string            `toml:"bootstrap_prefix"`
	Checkpoints      []Checkpoint      `toml:"checkpoints"`
	SeedPeers        []string          `toml:"seed_peers"`
}

// Checkpoint is one embedded (height, hash) pair (spec.md §4.12).
type Checkpoint struct {
	Height uint64 `toml:"height"`
	Hash   string `toml:"hash"`
}

// FromEnv reads the environment variables named in spec.md §6. Names are
// normative; unset variables fall back to the documented defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPPort:      envInt("VISION_PORT", 7070),
		P2PPort:       envInt("VISION_P2P_PORT", 7072),
		DataDir:       envString("VISION_DATA_DIR", "./vision-data"),
		PeerbookScope: envString("VISION_PEERBOOK_SCOPE", ""),
		MempoolMax:    envInt("VISION_MEMPOOL_MAX", 10_000),
		MinPeers:      envInt("VISION_MIN_PEERS", 2),
		DisableP2P:    envBool("VISION_DISABLE_P2P", false),
		MinerDisabled: envBool("VISION_MINER_DISABLED", false),
		AdminToken:    envString("VISION_ADMIN_TOKEN", ""),

		AllowBootstrapAlone:    envBool("VISION_ALLOW_BOOTSTRAP_ALONE", false),
		ReadinessCheckInterval: envInt("VISION_READINESS_CHECK_INTERVAL", 5),
		ReadinessMaxWait:       envInt("VISION_READINESS_MAX_WAIT", 0),
	}

	if raw := os.Getenv("VISION_BOOTSTRAP_PEERS"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.BootstrapPeers = append(cfg.BootstrapPeers, p)
			}
		}
	}

	if cfg.MempoolMax <= 0 {
		return nil, fmt.Errorf("config: VISION_MEMPOOL_MAX must be positive, got %d", cfg.MempoolMax)
	}
	if cfg.MinPeers < 0 {
		return nil, fmt.Errorf("config: VISION_MIN_PEERS must be non-negative, got %d", cfg.MinPeers)
	}
	if cfg.ReadinessCheckInterval <= 0 {
		return nil, fmt.Errorf("config: VISION_READINESS_CHECK_INTERVAL must be positive, got %d", cfg.ReadinessCheckInterval)
	}
	if cfg.ReadinessMaxWait < 0 {
		return nil, fmt.Errorf("config: VISION_READINESS_MAX_WAIT must be non-negative, got %d", cfg.ReadinessMaxWait)
	}

	return cfg, nil
}

// LoadStaticConfig overlays genesis/checkpoint/seed-peer data from a TOML
// file. A missing path (empty, or a file that does not exist) is not an
// error: it yields a zero StaticConfig. There are no compiled-in defaults,
// so cmd/visiond's run then rejects the empty genesis_pow_hash.
func LoadStaticConfig(path string) (StaticConfig, error) {
	var sc StaticConfig
	if path == "" {
		return sc, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sc, nil
		}
		return sc, fmt.Errorf("config: open static config %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(&sc); err != nil {
		return sc, fmt.Errorf("config: decode static config %s: %w", path, err)
	}
	return sc, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
