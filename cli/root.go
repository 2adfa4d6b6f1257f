// Package cli is the gusmove command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"GusMove/internal/config"
	"GusMove/internal/core"
	"GusMove/internal/logger"
	"GusMove/pkg/engine"
	"GusMove/pkg/progress"
	"GusMove/pkg/state"
)

// Version is set at build time with -ldflags "-X GusMove/cli.Version=...".
var Version = "dev"

type options struct {
	configFile string
	noTruncate bool
	json       bool
}

// Execute runs the root command and exits with its status.
func Execute() {
	cmd, opts := newRootCmd()
	if err := cmd.Execute(); err != nil {
		reportError(cmd, opts, err)
		os.Exit(ExitCode(err))
	}
}

// ExitCode maps a run error to a process status: 2 for usage errors, 1 for
// everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, engine.ErrSyntax):
		return 2
	default:
		return 1
	}
}

func reportError(cmd *cobra.Command, opts *options, err error) {
	if opts.json {
		NewJSONReporter(cmd.ErrOrStderr()).ReportError(err)
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	if errors.Is(err, engine.ErrSyntax) {
		fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
	}
}

func newRootCmd() (*cobra.Command, *options) {
	opts := &options{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "gusmove <source> <destination> [concurrency-limit]",
		Short: "Move a file or directory tree, resuming partial copies",
		Long: `gusmove moves a file or a whole directory tree to a new location.

Files already partly present at the destination are resumed from the
longest prefix that matches the source byte for byte. Each source file is
deleted as soon as its copy completes, and the source root is removed only
when every file moved. Symlinks are skipped with a warning.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.RangeArgs(2, 3)(cmd, args); err != nil {
				return engine.SyntaxError("%v", err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v, opts, args)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return engine.SyntaxError("%v", err)
	})

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default is $HOME/.gusmove/config.yaml)")
	flags.Int("buffer-size", engine.DefaultBufferSize, "copy buffer size in bytes; resume checks compare half of it at a time")
	flags.BoolVar(&opts.noTruncate, "no-truncate", false, "keep destination bytes beyond the source length")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-file", "", "also write logs to this file")
	flags.BoolVar(&opts.json, "json", false, "machine-readable output (JSON log lines and events)")
	flags.String("journal", "", "append a markdown journal of the run to this file")
	flags.String("progress", config.ProgressAuto, "progress display: auto, tty, log, none")

	_ = v.BindPFlag("transfer.buffer_size", flags.Lookup("buffer-size"))
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("logging.file", flags.Lookup("log-file"))
	_ = v.BindPFlag("logging.json", flags.Lookup("json"))
	_ = v.BindPFlag("journal.path", flags.Lookup("journal"))
	_ = v.BindPFlag("ui.progress", flags.Lookup("progress"))

	cmd.AddCommand(newVersionCmd())
	return cmd, opts
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gusmove %s\n", Version)
		},
	}
}

// parseConcurrency reads the optional third argument.
func parseConcurrency(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, engine.SyntaxError("invalid concurrency limit %q: not an integer", arg)
	}
	if n < 1 {
		return 0, engine.SyntaxError("invalid concurrency limit %q: must be at least 1", arg)
	}
	return n, nil
}

func run(cmd *cobra.Command, v *viper.Viper, opts *options, args []string) error {
	src, dst := args[0], args[1]

	cfg, err := config.Load(v, opts.configFile)
	if err != nil {
		return err
	}
	if len(args) == 3 {
		n, err := parseConcurrency(args[2])
		if err != nil {
			return err
		}
		cfg.Transfer.Concurrency = n
	}
	if opts.noTruncate {
		cfg.Transfer.Truncate = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.CheckPaths(src, dst, cfg.Journal.Path); err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.JSON); err != nil {
		return fmt.Errorf("failed to initialise logger: %w", err)
	}
	log := logger.Get().With().Str("component", "gusmove").Logger()

	sink := newSink(cfg.UI.Progress, cfg.Logging.JSON, log, cmd.OutOrStdout())
	defer sink.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			sink.Println("shutdown signal received, finishing running transfers")
			cancel()
		case <-ctx.Done():
		}
	}()

	var reporter Reporter = NewConsoleReporter(cmd.ErrOrStderr())
	if cfg.Logging.JSON {
		reporter = NewJSONReporter(cmd.OutOrStdout())
	}

	engineOpts := []engine.Option{
		engine.WithFs(afero.NewOsFs()),
		engine.WithSink(sink),
		engine.WithLogger(log),
		engine.WithEmitter(logEmitter(log)),
	}
	if cfg.Journal.Path != "" {
		journal, err := state.Open(afero.NewOsFs(), cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer journal.Close()
		engineOpts = append(engineOpts, engine.WithJournal(journal))
	}

	e := engine.New(engine.Config{
		Source:      src,
		Destination: dst,
		Concurrency: cfg.Transfer.Concurrency,
		BufferSize:  cfg.Transfer.BufferSize,
		Truncate:    cfg.Transfer.Truncate,
	}, engineOpts...)

	reporter.ReportStart(src, dst, cfg.Transfer.Concurrency)
	report, runErr := e.Run(ctx)

	// Stop the bars before the summary so it lands below them.
	if err := sink.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close progress display")
	}
	reporter.ReportComplete(report, runErr)
	return runErr
}

// newSink picks the progress renderer. auto means bars on a terminal and
// log lines otherwise. JSON output always goes through the logger so stdout
// only carries JSON events.
func newSink(mode string, jsonOut bool, log zerolog.Logger, out io.Writer) progress.Sink {
	if jsonOut {
		mode = config.ProgressLog
	}
	if mode == config.ProgressAuto {
		mode = config.ProgressLog
		if isTerminal(out) {
			mode = config.ProgressTTY
		}
	}
	switch mode {
	case config.ProgressTTY:
		return progress.NewTeaSink(out)
	case config.ProgressNone:
		return progress.Lines(out)
	default:
		return progress.NewLogSink(log, progress.DefaultLogInterval)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func logEmitter(log zerolog.Logger) core.RunEmitter {
	return core.EmitterFunc(func(ev core.RunEvent) {
		log.Debug().
			Str("run", ev.RunID).
			Int64("seq", ev.Seq).
			Str("from", string(ev.From)).
			Str("state", string(ev.State)).
			Str("detail", ev.Message).
			Int("queued", ev.Stats.Queued).
			Int("moved", ev.Stats.Moved).
			Int("failed", ev.Stats.Failed).
			Msg("run state changed")
	})
}
