// Package nullmesh wires the nullifier-gossip engine, the transfer
// validator, and the token lifecycle into a runnable daemon. cmd/nullmeshd
// is a thin main package over it.
package nullmesh

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/nullmesh/nullmesh/gossip"
	"github.com/nullmesh/nullmesh/nullifierstore"
	"github.com/nullmesh/nullmesh/reputation"
	"github.com/nullmesh/nullmesh/scorer"
	"github.com/nullmesh/nullmesh/token"
	"github.com/nullmesh/nullmesh/validator"
	"github.com/nullmesh/nullmesh/voprf"
)

// Loggers per subsystem. A single backend is created and every subsystem
// logger is derived from it, the way lnd.go's backendLog/ltndLog pair works.
// When adding a new subsystem, add its logger here and to subsystemLoggers.
var (
	backendLog = btclog.NewBackend(os.Stdout)

	nodeLog = backendLog.Logger("NODE")
	gospLog = backendLog.Logger("GOSP")
	vprfLog = backendLog.Logger("VPRF")
	nulsLog = backendLog.Logger("NULS")
	rputLog = backendLog.Logger("RPUT")
	scorLog = backendLog.Logger("SCOR")
	valdLog = backendLog.Logger("VALD")
	toknLog = backendLog.Logger("TOKN")
)

// log is node.go's own subsystem logger.
var log = nodeLog

func init() {
	gossip.UseLogger(gospLog)
	voprf.UseLogger(vprfLog)
	nullifierstore.UseLogger(nulsLog)
	reputation.UseLogger(rputLog)
	scorer.UseLogger(scorLog)
	validator.UseLogger(valdLog)
	token.UseLogger(toknLog)
}

var subsystemLoggers = map[string]btclog.Logger{
	"NODE": nodeLog,
	"GOSP": gospLog,
	"VPRF": vprfLog,
	"NULS": nulsLog,
	"RPUT": rputLog,
	"SCOR": scorLog,
	"VALD": valdLog,
	"TOKN": toknLog,
}

// SetLogLevel sets the logging level for a single subsystem, ignoring
// unknown subsystem tags.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets every subsystem logger to the same level.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}
