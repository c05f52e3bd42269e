package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/flowshot-io/dirtar/pkg/archiver"
	"github.com/flowshot-io/dirtar/pkg/config"
	"github.com/flowshot-io/dirtar/pkg/logger"
	"github.com/flowshot-io/dirtar/pkg/storager"
	"github.com/spf13/cobra"
)

// ErrUsage marks errors caused by how the command was invoked.
var ErrUsage = errors.New("usage error")

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type flags struct {
	configFile       string
	pretty           bool
	logLevel         string
	compressionLevel int
	publish          string
	publishKey       string
}

// NewRootCommand builds the dirtar command.
func NewRootCommand() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "dirtar <source_directory> <output_filename>",
		Short: "Package a directory into a gzip-compressed tar archive",
		Long: `dirtar writes every file, directory and symlink below source_directory into a
gzip-compressed tar archive at output_filename. All entries are stored under the
base name of source_directory, and an existing output file is replaced.`,
		Args:          exactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, args[0], args[1])
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})

	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "YAML settings file")
	fl.BoolVar(&f.pretty, "pretty", false, "human readable log output")
	fl.StringVar(&f.logLevel, "log-level", "", "log level: trace, debug, info, warn or error (default warn)")
	fl.IntVar(&f.compressionLevel, "compression-level", 0, "gzip compression level (1-9, -1 for default)")
	fl.StringVar(&f.publish, "publish", "", "storage connection string to upload the archive to")
	fl.StringVar(&f.publishKey, "publish-key", "", "object key for the uploaded archive (default: output file name)")

	return cmd
}

// Execute runs dirtar with args and returns the process exit status.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(context.Background())
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, ErrUsage):
		fmt.Fprintln(stderr, "Error:", err)
		fmt.Fprint(stderr, cmd.UsageString())
		return exitUsage
	default:
		fmt.Fprintln(stderr, "Error:", err)
		return exitError
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: accepts %d arg(s), received %d", ErrUsage, n, len(args))
		}
		return nil
	}
}

func run(cmd *cobra.Command, f *flags, source string, output string) error {
	settings, err := loadSettings(cmd, f)
	if err != nil {
		return err
	}

	log := logger.New(&logger.Options{
		Pretty: settings.Log.Pretty,
		Level:  settings.Log.Level,
		Output: cmd.ErrOrStderr(),
	})

	a := archiver.New(&archiver.Options{
		Logger:           log,
		CompressionLevel: settings.Archive.CompressionLevel,
		SingleThreaded:   settings.Archive.SingleThreaded,
	})
	if err := a.Archive(source, output); err != nil {
		if errors.Is(err, archiver.ErrNotDirectory) {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		return err
	}

	if settings.Publish.Connection == "" {
		return nil
	}

	return publish(cmd.Context(), log, settings.Publish, output)
}

// loadSettings merges defaults, the optional config file and explicitly set flags.
func loadSettings(cmd *cobra.Command, f *flags) (config.Settings, error) {
	settings := config.Default()

	if f.configFile != "" {
		if err := config.Load(filepath.Dir(f.configFile), filepath.Base(f.configFile), &settings); err != nil {
			return settings, fmt.Errorf("error loading config: %w", err)
		}
	}

	fl := cmd.Flags()
	if fl.Changed("pretty") {
		settings.Log.Pretty = f.pretty
	}
	if fl.Changed("log-level") {
		settings.Log.Level = f.logLevel
	}
	if fl.Changed("compression-level") {
		settings.Archive.CompressionLevel = f.compressionLevel
	}
	if fl.Changed("publish") {
		settings.Publish.Connection = f.publish
	}
	if fl.Changed("publish-key") {
		settings.Publish.Key = f.publishKey
	}

	if err := config.Validate(&settings); err != nil {
		return settings, fmt.Errorf("%w: invalid settings: %v", ErrUsage, err)
	}

	return settings, nil
}

func publish(ctx context.Context, log logger.Logger, opts config.PublishSettings, output string) error {
	key := opts.Key
	if key == "" {
		key = filepath.Base(output)
	}

	store, err := storager.New(opts.Connection)
	if err != nil {
		return fmt.Errorf("error opening publish target: %w", err)
	}

	n, err := storager.Upload(ctx, store, output, key)
	if err != nil {
		return fmt.Errorf("error publishing archive: %w", err)
	}

	log.Info("Archive published", map[string]interface{}{
		"key":   key,
		"bytes": n,
	})
	return nil
}
