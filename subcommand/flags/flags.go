// Package flags provides the flag set shared by the agent and sync
// subcommands, and a helper for merging flag sets together.
package flags

import (
	"errors"
	"flag"
	"time"
)

// BridgeFlags configures the connection between the bridge and its two
// upstreams, independent of which subcommand is running.
type BridgeFlags struct {
	SchedulerEndpoint string
	CatalogEndpoint   string
	RegistrationID    string
	AgentPort         int
	EnableFallback    bool
	DefaultTimeout    time.Duration
	AgentTimeout      time.Duration
	Debug             bool

	flagSet *flag.FlagSet
}

// Flags returns the flag.FlagSet backing these options. Calling it more
// than once returns the same set.
func (f *BridgeFlags) Flags() *flag.FlagSet {
	if f.flagSet != nil {
		return f.flagSet
	}

	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.StringVar(&f.SchedulerEndpoint, "scheduler-endpoint", "",
		"Base URL of the scheduler's HTTP API. Required.")
	fs.StringVar(&f.CatalogEndpoint, "catalog-endpoint", "",
		"Base URL of the cluster-wide catalog endpoint, used for KV operations, "+
			"node listing, and as the fallback target for failed agent registrations. Required.")
	fs.StringVar(&f.RegistrationID, "registration-id", "",
		"Identity of this bridge instance, inscribed in every registration it writes. Required.")
	fs.IntVar(&f.AgentPort, "agent-port", 8500,
		"Port the catalog's per-node agent listens on.")
	fs.BoolVar(&f.EnableFallback, "enable-fallback", true,
		"Retry a failed per-agent service registration against the cluster endpoint.")
	fs.DurationVar(&f.DefaultTimeout, "default-timeout", 5*time.Second,
		"Timeout for cluster-wide catalog operations.")
	fs.DurationVar(&f.AgentTimeout, "agent-timeout", 2*time.Second,
		"Timeout for per-agent catalog operations.")
	fs.BoolVar(&f.Debug, "debug", false,
		"Log the method, URL and response status of every catalog and scheduler HTTP call at debug level.")

	f.flagSet = fs
	return fs
}

// Validate returns an error describing the first required flag left unset.
func (f *BridgeFlags) Validate() error {
	if f.SchedulerEndpoint == "" {
		return errors.New("-scheduler-endpoint must be set")
	}
	if f.CatalogEndpoint == "" {
		return errors.New("-catalog-endpoint must be set")
	}
	if f.RegistrationID == "" {
		return errors.New("-registration-id must be set")
	}
	return nil
}

// Merge copies every flag defined on src onto dst, so a command can
// compose its own flags with BridgeFlags under a single FlagSet.
func Merge(dst, src *flag.FlagSet) {
	if dst == nil {
		panic("dst cannot be nil")
	}
	if src == nil {
		return
	}
	src.VisitAll(func(fl *flag.Flag) {
		dst.Var(fl.Value, fl.Name, fl.Usage)
	})
}
