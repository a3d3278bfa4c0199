package token

import "github.com/btcsuite/btclog"

// log is the token package's subsystem logger, wired by UseLogger from
// nullmeshd's startup log.go.
var log = btclog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
