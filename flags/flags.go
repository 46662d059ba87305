package flags

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ansel1/tfagg/config"
)

const EnvVarPrefix = "TFAGG"

// PrefixEnvVar returns the env var for a flag name, e.g. "log-level" becomes
// TFAGG_LOG_LEVEL.
func PrefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))}
}

var (
	File = &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		EnvVars: PrefixEnvVar("file"),
		Usage:   "Read runner output from file instead of stdin",
	}
	Outfile = &cli.StringFlag{
		Name:    "outfile",
		EnvVars: PrefixEnvVar("outfile"),
		Usage:   "Save all input to the specified file",
	}
	Eventfile = &cli.StringFlag{
		Name:    "eventfile",
		EnvVars: PrefixEnvVar("eventfile"),
		Usage:   "Save only the runner event lines to the specified file",
	}
	NoTTY = &cli.BoolFlag{
		Name:    "notty",
		EnvVars: PrefixEnvVar("notty"),
		Usage:   "Don't use the TUI, print plain output to stdout",
	}
	Replay = &cli.BoolFlag{
		Name:    "replay",
		EnvVars: PrefixEnvVar("replay"),
		Usage:   "Replay events with the timing of the original run (requires --file)",
	}
	Rate = &cli.Float64Flag{
		Name:    "rate",
		Value:   1.0,
		EnvVars: PrefixEnvVar("rate"),
		Usage:   "Replay rate multiplier (0=instant, 1=original speed, 0.5=2x speed)",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		EnvVars: PrefixEnvVar("config"),
		Usage:   "Path to a YAML config file",
	}
	RunnerName = &cli.StringFlag{
		Name:    "runner-name",
		EnvVars: PrefixEnvVar("runner-name"),
		Usage:   "Runner name reported with every result",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		EnvVars: PrefixEnvVar("log-level"),
		Usage:   "Log level: trace, debug, info, warn, error, crit",
	}
	LogFormat = &cli.StringFlag{
		Name:    "log-format",
		EnvVars: PrefixEnvVar("log-format"),
		Usage:   "Log format: terminal or json",
	}
	MetricsFile = &cli.StringFlag{
		Name:    "metrics-file",
		EnvVars: PrefixEnvVar("metrics-file"),
		Usage:   "Write Prometheus metrics to this file at exit",
	}
	SlowThreshold = &cli.DurationFlag{
		Name:    "slow-threshold",
		EnvVars: PrefixEnvVar("slow-threshold"),
		Usage:   "List tests at least this slow in the summary (0 disables)",
	}
	Width = &cli.IntFlag{
		Name:    "width",
		EnvVars: PrefixEnvVar("width"),
		Usage:   "Summary width in columns",
	}
	MaxLineSize = &cli.IntFlag{
		Name:    "max-line-size",
		EnvVars: PrefixEnvVar("max-line-size"),
		Usage:   "Longest input line accepted, in bytes",
	}
)

var Flags = []cli.Flag{
	File,
	Outfile,
	Eventfile,
	NoTTY,
	Replay,
	Rate,
	ConfigFile,
	RunnerName,
	LogLevel,
	LogFormat,
	MetricsFile,
	SlowThreshold,
	Width,
	MaxLineSize,
}

// CheckFlags validates flag combinations.
func CheckFlags(ctx *cli.Context) error {
	if ctx.Bool(Replay.Name) && ctx.String(File.Name) == "" {
		return errors.New("--replay requires --file")
	}
	if ctx.Float64(Rate.Name) < 0 {
		return fmt.Errorf("--rate must be >= 0, got %v", ctx.Float64(Rate.Name))
	}
	return nil
}

// ReadConfig loads the config file named by --config, if any, and applies
// the flags that were set on top of it.
func ReadConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := ctx.String(ConfigFile.Name); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	if ctx.IsSet(RunnerName.Name) {
		cfg.RunnerName = ctx.String(RunnerName.Name)
	}
	if ctx.IsSet(LogLevel.Name) {
		cfg.LogLevel = ctx.String(LogLevel.Name)
	}
	if ctx.IsSet(LogFormat.Name) {
		cfg.LogFormat = ctx.String(LogFormat.Name)
	}
	if ctx.IsSet(MetricsFile.Name) {
		cfg.MetricsFile = ctx.String(MetricsFile.Name)
	}
	if ctx.IsSet(SlowThreshold.Name) {
		cfg.SlowThreshold = ctx.Duration(SlowThreshold.Name)
	}
	if ctx.IsSet(Width.Name) {
		cfg.Width = ctx.Int(Width.Name)
	}
	if ctx.IsSet(MaxLineSize.Name) {
		cfg.MaxLineSize = ctx.Int(MaxLineSize.Name)
	}
	return cfg, cfg.Validate()
}
