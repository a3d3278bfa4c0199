package nullmesh

import (
	"os"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/jessevdk/go-flags"
	"github.com/nullmesh/nullmesh/gossip"
	"github.com/nullmesh/nullmesh/validator"
)

const (
	defaultLogLevel   = "info"
	defaultListenAddr = "0.0.0.0:9735"
)

// Config is the daemon's top-level configuration, combining the gossip
// engine's and the validator's tunables with the daemon's own knobs. It is
// populated by LoadConfig from the command line and, like lnd's config,
// validated once up front so every later component can trust its fields
// instead of re-checking them.
type Config struct {
	ListenAddrs []string `long:"listen" description:"add an interface/port to listen for peer connections"`
	Connect     []string `long:"connect" description:"add a peer to connect to on startup"`

	RequireOwnershipProof bool `long:"requireownershipproof" description:"reject nullifier gossip lacking an ownership proof"`

	LogLevel string `long:"loglevel" description:"logging level for all subsystems"`

	Gossip    gossip.Config
	Validator validator.Config
}

// DefaultConfig returns a Config with every field set to the documented
// defaults from the gossip and validator packages.
func DefaultConfig() *Config {
	return &Config{
		ListenAddrs: []string{defaultListenAddr},
		LogLevel:    defaultLogLevel,
		Gossip:      gossip.DefaultConfig(),
		Validator:   validator.DefaultConfig(),
	}
}

// LoadConfig parses command line flags over the documented defaults and
// validates the result, the way lnd's loadConfig wraps flags.Parse.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	cfg.Gossip.RequireOwnershipProof = cfg.RequireOwnershipProof

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateConfig fails fast on configuration that would otherwise surface as
// a confusing runtime error deep inside gossip.New or the validator.
func validateConfig(cfg *Config) error {
	if len(cfg.ListenAddrs) == 0 {
		return errors.New("config: at least one --listen address is required")
	}
	if cfg.Gossip.MaxNullifiers <= 0 {
		return errors.New("config: gossip MaxNullifiers must be positive")
	}
	if cfg.Gossip.MaxTimestampFuture <= 0 {
		return errors.New("config: gossip MaxTimestampFuture must be positive")
	}
	if cfg.Gossip.PruneInterval < pruneIntervalFloor {
		return errors.Errorf("config: gossip PruneInterval must be at least %s", pruneIntervalFloor)
	}
	if cfg.Validator.MinConfidence < 0 || cfg.Validator.MinConfidence > 1 {
		return errors.New("config: validator MinConfidence must be in [0,1]")
	}
	if cfg.Validator.WaitTime <= 0 || cfg.Validator.DeepWaitTime <= 0 {
		return errors.New("config: validator wait times must be positive")
	}
	if _, err := btclogLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// btclogLevel is split out of validateConfig purely so the unsupported-level
// error carries a useful message; btclog.LevelFromString itself just
// degrades silently to LevelInfo.
func btclogLevel(level string) (string, error) {
	known := []string{"trace", "debug", "info", "warn", "error", "critical", "off"}
	for _, k := range known {
		if strings.EqualFold(k, level) {
			return k, nil
		}
	}
	return "", errors.Errorf("config: unknown log level %q", level)
}

// pruneIntervalFloor keeps an operator-supplied interval from degenerating
// into a busy loop against the nullifier store.
const pruneIntervalFloor = time.Second
