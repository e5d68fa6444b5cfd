package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Version is the build-reported node version string; spec.md §4.11's
// handshake node_build field echoes it, and this command surfaces it to
// operators directly.
const Version = "0.1.0"

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "print the node version",
	Action: func(c *cli.Context) error {
		fmt.Println("visiond version", Version)
		return nil
	},
}
