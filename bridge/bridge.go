// Package bridge implements the core of the scheduler-to-catalog
// synchronization bridge: the event-driven registration state machine, the
// full-reconciliation sync engine, the orphan-purge engine, and the label
// mirror.
package bridge

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/smn/consular/catalog"
	"github.com/smn/consular/scheduler"
)

// DefaultAgentPort is the port the catalog's per-node agent listens on,
// used when Config.AgentPort is zero.
const DefaultAgentPort = 8500

// LabelKeyPrefix namespaces the bridge's label mirror subtree in the
// catalog's key/value store.
const LabelKeyPrefix = "consular"

// Config configures a Bridge.
type Config struct {
	// RegistrationID is this bridge instance's identity, inscribed in
	// every registration's reg-id tag. Required; no default.
	RegistrationID string

	// AgentPort is the catalog agent's node-local port. Defaults to
	// DefaultAgentPort if zero.
	AgentPort int
}

// Bridge wires a scheduler client and a catalog client together and
// implements the translation between them.
type Bridge struct {
	Scheduler scheduler.Client
	Catalog   catalog.Client
	Logger    hclog.Logger

	config Config
}

// New returns a Bridge. RegistrationID must be set in cfg.
func New(schedulerClient scheduler.Client, catalogClient catalog.Client, logger hclog.Logger, cfg Config) (*Bridge, error) {
	if cfg.RegistrationID == "" {
		return nil, fmt.Errorf("bridge: registration id must not be empty")
	}
	if cfg.AgentPort == 0 {
		cfg.AgentPort = DefaultAgentPort
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Bridge{
		Scheduler: schedulerClient,
		Catalog:   catalogClient,
		Logger:    logger,
		config:    cfg,
	}, nil
}

// agentEndpoint derives the node-local catalog agent address for a task
// host.
func (b *Bridge) agentEndpoint(host string) string {
	return fmt.Sprintf("http://%s:%d", host, b.config.AgentPort)
}

func (b *Bridge) regIDTag() string {
	return regIDTag(b.config.RegistrationID)
}

// ownershipTags returns the tags a registration for appID must carry.
func (b *Bridge) ownershipTags(appID string) []string {
	return ownershipTags(b.config.RegistrationID, appID)
}
