package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	conformance "github.com/ethereum-optimism/infra/op-conformance"
	"github.com/ethereum-optimism/infra/op-conformance/exitcodes"
	"github.com/ethereum-optimism/infra/op-conformance/flags"
	"github.com/ethereum-optimism/infra/op-conformance/service"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-conformance"
	app.Usage = "Conformance test runner for state-transition execution and proving backends"
	app.Description = "op-conformance runs a corpus of state-transition vectors against a prover and records resumable results"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		cli.HandleExitCoder(cli.Exit(err.Error(), exitCode(err)))
	}

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

// exitCode maps a typed error to the process exit code. Aborted runs take
// precedence since an interrupt also surfaces as a cancellation cause.
func exitCode(err error) int {
	var exitErr cli.ExitCoder
	switch {
	case conformance.IsAbortedError(err):
		return exitcodes.Interrupted
	case conformance.IsTestFailureError(err):
		return exitcodes.TestFailure
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	default:
		return exitcodes.RuntimeErr
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := conformance.NewConfig(ctx, log)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, conformance.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	svc, err := newService(ctx, log)
	if err != nil {
		return nil, conformance.NewRuntimeError(err)
	}

	app, err := conformance.New(cfg, Version, svc, closeApp)
	if err != nil {
		return nil, conformance.NewRuntimeError(fmt.Errorf("failed to create conformance runner: %w", err))
	}
	return app, nil
}

// newService returns the healthz and metrics service, or nil when metrics are
// disabled.
func newService(ctx *cli.Context, log log.Logger) (*service.Service, error) {
	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}
	if !metricsCfg.Enabled {
		return nil, nil
	}
	return service.New(service.Config{
		MetricsAddr: net.JoinHostPort(metricsCfg.ListenAddr, strconv.Itoa(metricsCfg.ListenPort)),
		Log:         log,
	}), nil
}
