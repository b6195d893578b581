// Package sync implements the one-shot reconciliation subcommand: run a
// single full Sync pass and exit, for use from cron or an external
// scheduler rather than as a long-lived process.
package sync

import (
	"context"
	"flag"
	"net/http"
	"sync"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/mitchellh/cli"

	"github.com/smn/consular/bridge"
	"github.com/smn/consular/catalog"
	"github.com/smn/consular/scheduler"
	"github.com/smn/consular/subcommand/common"
	"github.com/smn/consular/subcommand/flags"
)

type Command struct {
	UI cli.Ui

	bridgeFlags  *flags.BridgeFlags
	flagPurge    bool
	flagLogLevel string
	flagSet      *flag.FlagSet

	once sync.Once
	help string
}

func (c *Command) init() {
	c.flagSet = flag.NewFlagSet("", flag.ContinueOnError)
	c.flagSet.BoolVar(&c.flagPurge, "purge", true,
		"Run the orphan-purge engine and app-level label purge as part of this sync.")
	c.flagSet.StringVar(&c.flagLogLevel, "log-level", "info",
		"Log verbosity. One of \"trace\", \"debug\", \"info\", \"warn\", \"error\".")

	c.bridgeFlags = &flags.BridgeFlags{}
	flags.Merge(c.flagSet, c.bridgeFlags.Flags())
	c.help = "Usage: consular sync [options]\n\n  Run a single full reconciliation pass and exit.\n"
}

func (c *Command) Run(args []string) int {
	c.once.Do(c.init)
	if err := c.flagSet.Parse(args); err != nil {
		return 1
	}
	if err := c.validateFlags(); err != nil {
		c.UI.Error("Error: " + err.Error())
		return 1
	}

	logger, err := common.Logger(c.flagLogLevel)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Transport.(*http.Transport).DisableKeepAlives = true

	schedClient := scheduler.NewHTTPClient(
		c.bridgeFlags.SchedulerEndpoint,
		httpClient,
		logger.Named("scheduler"),
		c.bridgeFlags.Debug,
	)
	catalogClient := catalog.NewHTTPClient(
		c.bridgeFlags.CatalogEndpoint,
		httpClient,
		logger.Named("catalog"),
		c.bridgeFlags.Debug,
		c.bridgeFlags.EnableFallback,
		c.bridgeFlags.DefaultTimeout,
		c.bridgeFlags.AgentTimeout,
	)

	b, err := bridge.New(schedClient, catalogClient, logger, bridge.Config{
		RegistrationID: c.bridgeFlags.RegistrationID,
		AgentPort:      c.bridgeFlags.AgentPort,
	})
	if err != nil {
		c.UI.Error("Error: " + err.Error())
		return 1
	}

	if err := b.Sync(context.Background(), c.flagPurge); err != nil {
		c.UI.Error("Error: sync completed with errors: " + err.Error())
		return 1
	}

	c.UI.Info("sync completed successfully")
	return 0
}

// validateFlags checks that every flag required to run a sync is set.
func (c *Command) validateFlags() error {
	return c.bridgeFlags.Validate()
}

func (c *Command) Synopsis() string { return synopsis }
func (c *Command) Help() string {
	c.once.Do(c.init)
	return c.help
}

const synopsis = "Run a single full reconciliation pass"
