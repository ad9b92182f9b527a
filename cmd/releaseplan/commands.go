package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/artpar/releaseplan/internal/core/domain"
	"github.com/artpar/releaseplan/internal/shell/planning"
	"github.com/artpar/releaseplan/internal/shell/source"
	"github.com/artpar/releaseplan/internal/shell/telemetry"
	"github.com/spf13/cobra"
)

// =============================================================================
// Root Command
// =============================================================================

// RootOptions holds global flags and the state they resolve to.
type RootOptions struct {
	ConfigPath string
	Verbose    bool

	config *Config
	logger *slog.Logger
}

// NewRootCommand creates the root command for the releaseplan CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "releaseplan",
		Short: "Deployment sequencing and risk classification",
		Long: `releaseplan turns an analysis snapshot (stories, enforcement results and
component conflicts) into an ordered, risk-annotated deployment plan.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(opts.ConfigPath)
			if err != nil {
				return &CommandError{Op: "LoadConfig", Err: err, ExitCode: ExitConfigError}
			}
			if opts.Verbose {
				cfg.Log.Level = "debug"
			}
			opts.config = cfg
			// stdout is reserved for plan output.
			opts.logger = SetupLogger(cfg, cmd.ErrOrStderr())
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// =============================================================================
// Plan Command
// =============================================================================

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	InputFormat string
	Snapshot    string
	Envelope    bool
	Output      string
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{}

	cmd := &cobra.Command{
		Use:   "plan [file|-]",
		Short: "Build a deployment plan from an analysis snapshot",
		Long: `Build a deployment plan and write it as JSON.

The analysis is read from a JSON or YAML file, from stdin when the argument
is "-", or from a SQLite snapshot (--snapshot or source.snapshot_dsn).
When publishing is enabled the plan is also sent to Kafka.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), rootOpts, opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.InputFormat, "input-format", "", "input format (json|yaml); defaults to the file extension, json for stdin")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "SQLite analysis snapshot to read")
	cmd.Flags().BoolVar(&opts.Envelope, "envelope", false, "wrap the plan with its plan ID and generation time")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the plan to a file instead of stdout")

	return cmd
}

func runPlan(ctx context.Context, rootOpts *RootOptions, opts *PlanOptions, args []string, cmd *cobra.Command) error {
	cfg, logger := rootOpts.config, rootOpts.logger

	analysis, err := loadAnalysis(ctx, cfg, opts, args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	logger.Debug("analysis loaded",
		"stories", len(analysis.Stories),
		"enforcement_results", len(analysis.EnforcementResults),
		"conflicts", len(analysis.Conflicts),
	)

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return &CommandError{Op: "Telemetry", Err: err, ExitCode: ExitConfigError}
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return &CommandError{Op: "Publish", Err: err, ExitCode: ExitConfigError}
	}
	defer publisher.Close()

	service := planning.NewService(logger,
		planning.WithOptions(cfg.Plan.Options()),
		planning.WithPublisher(publisher),
	)

	result, planErr := service.Plan(ctx, analysis)
	if planErr != nil && !errors.Is(planErr, planning.ErrPublishFailed) {
		return &CommandError{Op: "Plan", Err: planErr, ExitCode: ExitServerError}
	}

	// The plan is written even when publishing failed.
	var out any = result.Plan
	if opts.Envelope {
		out = result
	}
	if err := writeJSON(cmd.OutOrStdout(), opts.Output, out); err != nil {
		return &CommandError{Op: "WriteOutput", Err: err, ExitCode: ExitConfigError}
	}

	if planErr != nil {
		return &CommandError{Op: "Publish", Err: planErr, ExitCode: ExitPublishError}
	}
	return nil
}

// loadAnalysis resolves the input source of the plan command.
func loadAnalysis(ctx context.Context, cfg *Config, opts *PlanOptions, args []string, stdin io.Reader) (domain.Analysis, error) {
	var (
		analysis domain.Analysis
		err      error
	)

	switch {
	case len(args) == 1 && opts.Snapshot != "":
		return analysis, &CommandError{
			Op:       "LoadAnalysis",
			Err:      errors.New("an input file and --snapshot are mutually exclusive"),
			ExitCode: ExitConfigError,
		}

	case len(args) == 1 && args[0] == "-":
		name := opts.InputFormat
		if name == "" {
			name = string(source.FormatJSON)
		}
		var format source.Format
		if format, err = source.ParseFormat(name); err == nil {
			analysis, err = source.Decode(stdin, format)
		}

	case len(args) == 1:
		if opts.InputFormat == "" {
			analysis, err = source.LoadFile(args[0])
			break
		}
		var format source.Format
		if format, err = source.ParseFormat(opts.InputFormat); err == nil {
			analysis, err = source.LoadFileAs(args[0], format)
		}

	default:
		dsn := opts.Snapshot
		if dsn == "" {
			dsn = cfg.Source.SnapshotDSN
		}
		if dsn == "" {
			return analysis, &CommandError{
				Op:       "LoadAnalysis",
				Err:      errors.New("no input: pass a file, - for stdin, or --snapshot"),
				ExitCode: ExitConfigError,
			}
		}
		analysis, err = loadSnapshot(ctx, dsn)
	}

	if err != nil {
		return analysis, &CommandError{Op: "LoadAnalysis", Err: err, ExitCode: ExitSourceError}
	}
	return analysis, nil
}

func loadSnapshot(ctx context.Context, dsn string) (domain.Analysis, error) {
	snap, err := source.OpenSnapshot(dsn)
	if err != nil {
		return domain.Analysis{}, err
	}
	defer snap.Close()
	return snap.Load(ctx)
}

// writeJSON writes v as indented JSON to path, or to w when path is empty.
func writeJSON(w io.Writer, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = w.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// =============================================================================
// Serve Command
// =============================================================================

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the planning HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The server has no plan output, so it logs to stdout.
			logger := SetupLogger(rootOpts.config, cmd.OutOrStdout())
			logger.Info("starting releaseplan",
				"version", Version,
				"config", rootOpts.ConfigPath,
			)

			server, err := NewServer(cmd.Context(), rootOpts.config, logger)
			if err != nil {
				return err
			}
			return server.Start(cmd.Context())
		},
	}
}

// =============================================================================
// Version Command
// =============================================================================

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "releaseplan %s (built %s)\n", Version, BuildTime)
			return err
		},
	}
}
