// Package common holds code shared by the agent and sync subcommands.
package common

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Logger returns an hclog instance at the given level, writing to stderr.
func Logger(level string) (hclog.Logger, error) {
	parsed := hclog.LevelFromString(level)
	if parsed == hclog.NoLevel {
		return nil, fmt.Errorf("unknown log level: %s", level)
	}
	return hclog.New(&hclog.LoggerOptions{
		Level:  parsed,
		Output: os.Stderr,
	}), nil
}
