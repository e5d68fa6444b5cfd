package main

import "github.com/urfave/cli/v2"

// dataDirFlag and nodeTagFlag are shared across every subcommand that
// touches the node's identity or storage, so run/show-identity/peers agree
// on the same data directory and label without re-declaring the flag.
var (
	dataDirFlag = &cli.StringFlag{
		Name:    "data-dir",
		Usage:   "node data directory (overrides VISION_DATA_DIR)",
		EnvVars: []string{"VISION_DATA_DIR"},
		Value:   "./vision-data",
	}
	nodeTagFlag = &cli.StringFlag{
		Name:  "node-tag",
		Usage: "human label for this node's vision address",
		Value: "node",
	}
	staticConfigFlag = &cli.StringFlag{
		Name:  "static-config",
		Usage: "path to the TOML file carrying genesis/checkpoint/seed-peer parameters",
	}
	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "print machine-readable JSON instead of a table",
	}
)
