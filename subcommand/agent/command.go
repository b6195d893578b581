// Package agent implements the long-running bridge process: it registers
// the event subscription at startup, serves the scheduler's event callback,
// and runs a periodic full reconciliation alongside the event-driven updates.
package agent

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/smn/consular/bridge"
	"github.com/smn/consular/catalog"
	"github.com/smn/consular/scheduler"
	"github.com/smn/consular/subcommand/common"
	"github.com/smn/consular/subcommand/flags"
)

const shutdownTimeout = 5 * time.Second

type Command struct {
	UI cli.Ui

	bridgeFlags    *flags.BridgeFlags
	flagBindAddr   string
	flagSyncPeriod time.Duration
	flagPurge      bool
	flagLogLevel   string
	flagSet        *flag.FlagSet

	logger hclog.Logger
	once   sync.Once
	help   string
	sigCh  chan os.Signal

	// httpServer is the listener Run starts, kept so it can be shut down
	// gracefully on a signal.
	httpServer *http.Server
}

func (c *Command) init() {
	c.flagSet = flag.NewFlagSet("", flag.ContinueOnError)
	c.flagSet.StringVar(&c.flagBindAddr, "bind-addr", ":7777",
		"Address the bridge's HTTP listener binds to, serving GET / and POST /events.")
	c.flagSet.DurationVar(&c.flagSyncPeriod, "sync-period", 30*time.Second,
		"Interval between full reconciliation passes, in addition to event-driven updates.")
	c.flagSet.BoolVar(&c.flagPurge, "purge", true,
		"Run the orphan-purge engine and app-level label purge on every periodic sync.")
	c.flagSet.StringVar(&c.flagLogLevel, "log-level", "info",
		"Log verbosity. One of \"trace\", \"debug\", \"info\", \"warn\", \"error\".")

	c.bridgeFlags = &flags.BridgeFlags{}
	flags.Merge(c.flagSet, c.bridgeFlags.Flags())
	c.help = "Usage: consular agent [options]\n\n  Run the long-lived bridge process.\n"

	if c.sigCh == nil {
		c.sigCh = make(chan os.Signal, 1)
		signal.Notify(c.sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
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
	c.logger = logger

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

	signalCtx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-c.sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	callbackURL := fmt.Sprintf("http://%s/events?%s", c.flagBindAddr,
		url.Values{"registration": {c.bridgeFlags.RegistrationID}}.Encode())
	if err := c.registerCallbackWithRetry(signalCtx, b, callbackURL); err != nil {
		c.UI.Error("Error: failed to register event callback: " + err.Error())
		return 1
	}

	if err := b.Sync(signalCtx, c.flagPurge); err != nil {
		logger.Error("initial sync encountered errors", "err", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", b.IndexHandler())
	mux.Handle("/events", b.EventsHandler())
	c.httpServer = &http.Server{Addr: c.flagBindAddr, Handler: mux}

	srvExitCh := make(chan error, 1)
	go func() {
		if err := c.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvExitCh <- err
		}
	}()

	go c.syncLoop(signalCtx, b)

	select {
	case <-signalCtx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := c.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down HTTP listener", "err", err)
		}
		return 0
	case err := <-srvExitCh:
		logger.Error("HTTP listener exited", "err", err)
		return 1
	}
}

// validateFlags checks that every flag required to run the agent is set.
func (c *Command) validateFlags() error {
	return c.bridgeFlags.Validate()
}

// registerCallbackWithRetry keeps trying to register the event callback,
// with exponential backoff, until it succeeds, ctx is cancelled, or the
// backoff's maximum elapsed time runs out; the scheduler may not be
// reachable yet at process startup.
func (c *Command) registerCallbackWithRetry(ctx context.Context, b *bridge.Bridge, callbackURL string) error {
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		ok, err := b.RegisterEventCallback(ctx, callbackURL)
		if err != nil {
			c.logger.Warn("event callback registration attempt failed", "err", err)
			return err
		}
		if !ok {
			return errors.New("scheduler rejected event callback registration")
		}
		return nil
	}, bo)
}

func (c *Command) syncLoop(ctx context.Context, b *bridge.Bridge) {
	ticker := time.NewTicker(c.flagSyncPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Sync(ctx, c.flagPurge); err != nil {
				c.logger.Error("periodic sync encountered errors", "err", err)
			}
		}
	}
}

// sendSignal delivers sig to the command's signal channel. Used by tests
// that need to trigger a graceful shutdown without an OS signal.
func (c *Command) sendSignal(sig os.Signal) {
	c.sigCh <- sig
}

func (c *Command) Synopsis() string { return synopsis }
func (c *Command) Help() string {
	c.once.Do(c.init)
	return c.help
}

const synopsis = "Run the long-lived scheduler-to-catalog bridge"
