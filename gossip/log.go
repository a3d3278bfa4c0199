package gossip

import "github.com/btcsuite/btclog"

// log is the gossip package's subsystem logger. It is disabled until the
// daemon's log.go wires a real backend in via UseLogger, matching how the
// rest of this tree's packages are logged.
var log = btclog.Disabled

// UseLogger sets the logger used by this package. Should be called before
// the package is used; nullmeshd's log.go does this at startup.
func UseLogger(logger btclog.Logger) {
	log = logger
}
