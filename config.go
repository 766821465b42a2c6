package conformance

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-conformance/flags"
	"github.com/ethereum-optimism/infra/op-conformance/runner"
	"github.com/ethereum-optimism/infra/op-conformance/runstate"
)

// Config holds the application configuration
type Config struct {
	CorpusDir     string
	SelectionFile string             // optional include/exclude patterns
	ProverBinary  string             // external prover executed once per test
	ProverArgs    []string           // extra prover arguments
	ProverTimeout time.Duration      // per invocation, 0 disables
	StateSpec     string             // run state location, see runstate.Open
	ResumeMode    runner.ResumeMode  // which recorded tests are run again
	ProgressMode  runner.ProgressMode
	CatchFaults   bool   // turn backend panics into internal faults
	Diff          bool   // explain mismatches with the reference interpreter
	LogDir        string // directory for summary and diff files
	Strict        bool   // exit 1 when a test did not pass
	RunID         string // generated when empty
	Log           log.Logger
}

// fileConfig is the TOML form of Config. Unset keys keep the flag values.
type fileConfig struct {
	Corpus        string        `toml:"corpus"`
	Selection     string        `toml:"selection"`
	Prover        string        `toml:"prover"`
	ProverArgs    []string      `toml:"prover_args"`
	ProverTimeout time.Duration `toml:"prover_timeout"`
	State         string        `toml:"state"`
	Resume        string        `toml:"resume"`
	Progress      string        `toml:"progress"`
	CatchFaults   *bool         `toml:"catch_faults"`
	Diff          *bool         `toml:"diff"`
	LogDir        string        `toml:"log_dir"`
	Strict        *bool         `toml:"strict"`
	RunID         string        `toml:"run_id"`
}

func loadConfigFile(file string) (*fileConfig, error) {
	var fc fileConfig
	md, err := toml.DecodeFile(file, &fc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", file, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in config file %s: %v", file, undecoded)
	}
	return &fc, nil
}

// NewConfig creates a new Config from cli context. Values from the optional
// config file are used for every flag that was not set explicitly.
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	fc := &fileConfig{}
	if file := ctx.String(flags.ConfigFile.Name); file != "" {
		var err error
		if fc, err = loadConfigFile(file); err != nil {
			return nil, err
		}
	}

	str := func(f *cli.StringFlag, fileVal string) string {
		if ctx.IsSet(f.Name) || fileVal == "" {
			return ctx.String(f.Name)
		}
		return fileVal
	}
	boolean := func(f *cli.BoolFlag, fileVal *bool) bool {
		if ctx.IsSet(f.Name) || fileVal == nil {
			return ctx.Bool(f.Name)
		}
		return *fileVal
	}

	proverArgs := ctx.StringSlice(flags.ProverArgs.Name)
	if !ctx.IsSet(flags.ProverArgs.Name) && len(fc.ProverArgs) > 0 {
		proverArgs = fc.ProverArgs
	}
	proverTimeout := ctx.Duration(flags.ProverTimeout.Name)
	if !ctx.IsSet(flags.ProverTimeout.Name) && fc.ProverTimeout != 0 {
		proverTimeout = fc.ProverTimeout
	}

	cfg := &Config{
		CorpusDir:     str(flags.CorpusDir, fc.Corpus),
		SelectionFile: str(flags.Selection, fc.Selection),
		ProverBinary:  str(flags.Prover, fc.Prover),
		ProverArgs:    proverArgs,
		ProverTimeout: proverTimeout,
		StateSpec:     str(flags.State, fc.State),
		ResumeMode:    runner.ResumeMode(str(flags.Resume, fc.Resume)),
		ProgressMode:  runner.ProgressMode(str(flags.Progress, fc.Progress)),
		CatchFaults:   boolean(flags.CatchFaults, fc.CatchFaults),
		Diff:          boolean(flags.Diff, fc.Diff),
		LogDir:        str(flags.LogDir, fc.LogDir),
		Strict:        boolean(flags.Strict, fc.Strict),
		RunID:         str(flags.RunID, fc.RunID),
		Log:           log,
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check validates the configuration and resolves its paths.
func (c *Config) Check() error {
	if c.CorpusDir == "" {
		return errors.New("corpus directory is required")
	}
	if c.ProverBinary == "" {
		return errors.New("prover binary is required")
	}
	if !c.ResumeMode.IsValid() {
		return fmt.Errorf("invalid resume mode %q, must be one of %v", c.ResumeMode, runner.ResumeModes)
	}
	if !c.ProgressMode.IsValid() {
		return fmt.Errorf("invalid progress mode %q, must be one of %v", c.ProgressMode, runner.ProgressModes)
	}
	if c.ProverTimeout < 0 {
		return fmt.Errorf("prover timeout cannot be negative: %s", c.ProverTimeout)
	}
	if kind, path := runstate.ParseSpec(c.StateSpec); kind != runstate.KindMemory && path == "" {
		return fmt.Errorf("run state location %q has no path", c.StateSpec)
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}

	var err error
	if c.CorpusDir, err = filepath.Abs(c.CorpusDir); err != nil {
		return fmt.Errorf("failed to resolve absolute path for corpus directory '%s': %w", c.CorpusDir, err)
	}
	if c.LogDir, err = filepath.Abs(c.LogDir); err != nil {
		return fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", c.LogDir, err)
	}
	return nil
}
