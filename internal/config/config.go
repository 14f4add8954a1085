// Package config parses exchanged's startup flags with go-flags,
// following the pack's convention of a struct-tag-driven options type.
package config

import (
	"time"

	"github.com/jessevdk/go-flags"
)

// Config holds every tunable exchanged needs at startup: where the
// durable store and cache live, and how aggressively the persistence
// buffer batches writes.
type Config struct {
	PostgresDSN string `long:"postgres-dsn" env:"EXCHANGED_POSTGRES_DSN" description:"Postgres connection string for the durable store" required:"true"`
	RedisAddr   string `long:"redis-addr" env:"EXCHANGED_REDIS_ADDR" description:"Redis address for the read-through cache" default:"localhost:6379"`

	BatchMax      int           `long:"batch-max" env:"EXCHANGED_BATCH_MAX" description:"Flush the persistence buffer once this many events have queued" default:"4096"`
	BatchInterval time.Duration `long:"batch-interval" env:"EXCHANGED_BATCH_INTERVAL" description:"Flush the persistence buffer after this much time has passed" default:"50ms"`
	MaxRetries    uint64        `long:"max-retries" env:"EXCHANGED_MAX_RETRIES" description:"Retries for one failed batch flush before halting" default:"5"`

	Script string `short:"f" long:"script" description:"Path to a request-line script to run instead of reading stdin interactively"`

	Verbose bool `short:"v" long:"verbose" description:"Enable debug-level logging"`
}

// Parse parses args (typically os.Args[1:]) into a Config, returning
// the go-flags error verbatim so main can distinguish a help request
// (flags.ErrHelp) from a genuine parse failure.
func Parse(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return &cfg, nil
}
