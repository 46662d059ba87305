package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ansel1/tfagg/config"
	"github.com/ansel1/tfagg/engine"
	"github.com/ansel1/tfagg/exitcodes"
	"github.com/ansel1/tfagg/flags"
	"github.com/ansel1/tfagg/logging"
	"github.com/ansel1/tfagg/metrics"
	"github.com/ansel1/tfagg/output"
	"github.com/ansel1/tfagg/output/format"
	"github.com/ansel1/tfagg/results"
	"github.com/ansel1/tfagg/tui"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
)

func main() {
	app := newApp()
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
			return
		}
		cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.Code(err)))
	}
	if err := app.Run(os.Args); err != nil {
		os.Exit(exitcodes.Code(err))
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "tfagg"
	app.Version = Version
	if GitCommit != "" {
		app.Version += "-" + GitCommit
	}
	app.Usage = "Aggregate Tradefed runner events into test results"
	app.Description = "tfagg reads the event stream of a Tradefed test runner from stdin or a file " +
		"and reports one result per test, followed by a summary."
	app.Flags = flags.Flags
	app.Action = run
	return app
}

func run(c *cli.Context) error {
	if err := flags.CheckFlags(c); err != nil {
		return exitcodes.NewRuntimeError(err)
	}
	cfg, err := flags.ReadConfig(c)
	if err != nil {
		return exitcodes.NewRuntimeError(fmt.Errorf("failed to read config: %w", err))
	}

	stdout, stderr := c.App.Writer, c.App.ErrWriter
	if stderr == nil {
		stderr = os.Stderr
	}
	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return exitcodes.NewRuntimeError(err)
	}
	log.SetDefault(logger)

	infile := c.String(flags.File.Name)
	replay := c.Bool(flags.Replay.Name)
	rate := c.Float64(flags.Rate.Name)

	// Setup input source (file or stdin)
	var input io.Reader = c.App.Reader
	if infile != "" {
		f, err := os.Open(infile)
		if err != nil {
			return exitcodes.NewRuntimeError(fmt.Errorf("opening input file: %w", err))
		}
		defer f.Close()

		input = f
		if replay {
			rr, err := engine.NewReplayReader(f, rate)
			if err != nil {
				return exitcodes.NewRuntimeError(fmt.Errorf("creating replay reader: %w", err))
			}
			input = rr
		}
	}

	opts := []engine.Option{engine.WithMaxLineSize(cfg.MaxLineSize)}
	if path := c.String(flags.Outfile.Name); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return exitcodes.NewRuntimeError(fmt.Errorf("creating output file: %w", err))
		}
		defer f.Close()
		opts = append(opts, engine.WithRawOutput(f))
	}
	if path := c.String(flags.Eventfile.Name); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return exitcodes.NewRuntimeError(fmt.Errorf("creating event file: %w", err))
		}
		defer f.Close()
		opts = append(opts, engine.WithEventOutput(f))
	}

	recorder := metrics.NewRecorder(logger.New("component", "metrics"))
	collector := results.NewCollector(
		results.WithRunnerName(cfg.RunnerName),
		results.WithCollectorLogger(logger),
		results.WithSink(recorder),
	)
	logger.Debug("Starting aggregation", "invocation", collector.InvocationID(), "runner", cfg.RunnerName)

	events := engine.NewEngine(opts...).Stream(input)
	formatter := format.NewSummaryFormatterWithColors(cfg.Width, isTerminal(stdout))

	// Skip TUI if:
	// 1. --notty flag is set, OR
	// 2. --file is used without --replay, OR
	// 3. stdout isn't a terminal
	skipTUI := c.Bool(flags.NoTTY.Name) || (infile != "" && !replay) || !isTerminal(stdout)

	if skipTUI {
		simple := output.NewSimpleOutput(stdout, collector,
			output.WithSlowThreshold(cfg.SlowThreshold),
			output.WithFormatter(formatter),
		)
		if err := simple.ProcessEvents(events); err != nil {
			return exitcodes.NewRuntimeError(fmt.Errorf("writing output: %w", err))
		}
	} else if err := runTUI(collector, events, stdout, infile == "", replay, rate, cfg); err != nil {
		return exitcodes.NewRuntimeError(err)
	}

	run := collector.Run()
	recorder.RecordRun(run)
	for _, ie := range run.InfraErrors {
		recorder.RecordInfraError(ie.Err)
	}
	if cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("Failed to write metrics", "err", err)
		}
	}

	return runError(run, collector.Err())
}

// runTUI shows the live view until the invocation finishes or the user
// quits, then prints the summary.
func runTUI(collector *results.Collector, events <-chan engine.Event, stdout io.Writer, stdinInput, replay bool, rate float64, cfg config.Config) error {
	m := tui.NewModel(replay, rate, collector)
	m.SlowThreshold = cfg.SlowThreshold

	progOpts := []tea.ProgramOption{tea.WithOutput(stdout)}
	if stdinInput {
		// stdin carries the runner output, read keys from the terminal
		progOpts = append(progOpts, tea.WithInputTTY())
	}
	p := tea.NewProgram(m, progOpts...)

	sub := collector.Subscribe()
	go collector.ProcessEvents(events)

	var g errgroup.Group
	g.Go(func() error {
		for evt := range sub {
			p.Send(tui.ResultsEventMsg(evt))
		}
		p.Send(tui.EOFMsg{})
		return nil
	})
	g.Go(func() error {
		_, err := p.Run()
		// Ends the subscription if the user quit early
		collector.Finish()
		if err != nil {
			return fmt.Errorf("running program: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	m.SetFormatter(format.NewSummaryFormatterWithColors(cfg.Width, isTerminal(stdout)))
	m.DisplaySummary(stdout)
	return nil
}

// runError classifies the outcome of the run for the exit code.
func runError(run *results.Run, aggErr error) error {
	if len(run.InfraErrors) > 0 {
		if aggErr == nil {
			aggErr = run.InfraErrors[0].Err
		}
		return exitcodes.NewInfraError(aggErr)
	}
	counts := run.Counts()
	if n := counts.Failed + counts.Errors; n > 0 {
		return exitcodes.NewTestFailureError(fmt.Sprintf("%d of %d tests failed", n, counts.Total()))
	}
	return nil
}

func newLogger(cfg config.Config, w io.Writer) (log.Logger, error) {
	lvl, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(w, lvl, cfg.LogFormat, isTerminal(w))
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
