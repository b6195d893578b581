package main

import (
	"os"

	"github.com/mitchellh/cli"

	cmdAgent "github.com/smn/consular/subcommand/agent"
	cmdSync "github.com/smn/consular/subcommand/sync"
)

// Commands is the mapping of all available consular subcommands.
var Commands map[string]cli.CommandFactory

func init() {
	ui := &cli.BasicUi{Writer: os.Stdout, ErrorWriter: os.Stderr}

	Commands = map[string]cli.CommandFactory{
		"agent": func() (cli.Command, error) {
			return &cmdAgent.Command{UI: ui}, nil
		},
		"sync": func() (cli.Command, error) {
			return &cmdSync.Command{UI: ui}, nil
		},
	}
}
