// Command visiond is the proof-of-work node binary: it owns the chain
// store, mempool, miner, and P2P stack, and exposes them through a small
// set of CLI subcommands (spec.md §6 "CLI surface").
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

// Exit codes spec.md §6 names as normative.
const (
	exitOK           = 0
	exitConfigError  = 1
	exitStorageError = 2
	exitRuntimeError = 3
)

var app = &cli.App{
	Name:  "visiond",
	Usage: "proof-of-work blockchain node",
	Commands: []*cli.Command{
		runCommand,
		versionCommand,
		showIdentityCommand,
		peersCommand,
	},
}

func main() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelInfo, true)))

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "visiond:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitErr pins an exit code to an error, so a command can signal exactly
// which of spec.md §6's categories a failure falls into.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func configErr(err error) error  { return &exitErr{exitConfigError, err} }
func storageErr(err error) error { return &exitErr{exitStorageError, err} }
func runtimeErr(err error) error { return &exitErr{exitRuntimeError, err} }

func exitCodeFor(err error) int {
	var ee *exitErr
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitRuntimeError
}
