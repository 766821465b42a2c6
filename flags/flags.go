package flags

import (
	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-conformance/runner"
	"github.com/ethereum-optimism/infra/op-conformance/runstate"
)

const EnvVarPrefix = "OP_CONFORMANCE"

var (
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   "Path to a TOML file providing defaults; flags set explicitly take precedence",
	}
	CorpusDir = &cli.StringFlag{
		Name:    "corpus",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CORPUS"),
		Usage:   "Path to the corpus directory laid out as <group>/<subgroup>/<test>.json",
	}
	Selection = &cli.StringFlag{
		Name:    "selection",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SELECTION"),
		Usage:   "Path to a YAML file with include/exclude test ID patterns",
	}
	Prover = &cli.StringFlag{
		Name:    "prover",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROVER"),
		Usage:   "Path to the prover binary executed once per test",
	}
	ProverArgs = &cli.StringSliceFlag{
		Name:    "prover.arg",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROVER_ARG"),
		Usage:   "Extra argument passed to the prover, may be repeated",
	}
	ProverTimeout = &cli.DurationFlag{
		Name:    "prover.timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROVER_TIMEOUT"),
		Usage:   "Timeout for one prover invocation (e.g. '10m'). 0 disables the timeout; a timeout is an internal fault.",
	}
	State = &cli.StringFlag{
		Name:    "state",
		Value:   runstate.DefaultSpec,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STATE"),
		Usage:   "Run state location: file:<path>, leveldb:<dir>, sqlite:<path> or memory:",
	}
	Resume = &cli.StringFlag{
		Name:    "resume",
		Value:   string(runner.DefaultResumeMode),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RESUME"),
		Usage:   "Which tests with a recorded status are run again: all, incomplete or failed",
	}
	Progress = &cli.StringFlag{
		Name:    "progress",
		Value:   string(runner.DefaultProgressMode),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS"),
		Usage:   "Progress display: plain or bar",
	}
	CatchFaults = &cli.BoolFlag{
		Name:    "catch-faults",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CATCH_FAULTS"),
		Usage:   "Record a crash inside the backend as an internal fault instead of terminating",
	}
	Diff = &cli.BoolFlag{
		Name:    "diff",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DIFF"),
		Usage:   "Replay mismatched tests with the reference interpreter and print an account diff",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Directory for the run summary and diff files",
	}
	Strict = &cli.BoolFlag{
		Name:    "strict",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STRICT"),
		Usage:   "Exit with code 1 when any test did not pass",
	}
	RunID = &cli.StringFlag{
		Name:    "run-id",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_ID"),
		Usage:   "Identifier of this run, generated when empty",
	}
)

// Corpus and prover may come from the config file, so none of the flags
// below is marked required at the CLI level.
var optionalFlags = []cli.Flag{
	ConfigFile,
	CorpusDir,
	Selection,
	Prover,
	ProverArgs,
	ProverTimeout,
	State,
	Resume,
	Progress,
	CatchFaults,
	Diff,
	LogDir,
	Strict,
	RunID,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = optionalFlags
}
