// Package cli provides the pdftools command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/pdftools/internal/config"
	"github.com/Lllllllleong/pdftools/internal/logging"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pdf"
	"github.com/Lllllllleong/pdftools/internal/pipeline"
)

// Version is set at build time.
var Version = "dev"

// App is the pdftools command tree.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer
	codec  pdf.Codec

	configPath string
	jsonOutput bool
	quiet      bool
}

// New creates the CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "pdftools",
		Short: "Compress, merge, split, watermark and protect PDF documents",
		Long: `pdftools transforms PDF documents. Every command writes its output atomically:
an output file only appears once it is complete, and an interrupted run leaves
nothing behind.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := app.root.PersistentFlags()
	flags.StringVarP(&app.configPath, "config", "c", "", "Path to a YAML configuration file")
	flags.BoolVar(&app.jsonOutput, "json", false, "Print the result as JSON")
	flags.BoolVarP(&app.quiet, "quiet", "q", false, "Do not print progress")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newCompressCmd(),
		app.newMergeCmd(),
		app.newSplitCmd(),
		app.newExtractCmd(),
		app.newWatermarkCmd(),
		app.newProtectCmd(),
		app.newUnprotectCmd(),
	)
	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// WithCodec replaces the pdfcpu codec.
func (a *App) WithCodec(codec pdf.Codec) *App {
	a.codec = codec
	return a
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the running operation at its next page or
// file boundary.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "pdftools version %s\n", Version)
		},
	}
}

// setup loads configuration and builds the pipeline for one command.
func (a *App) setup() (config.Config, *pipeline.Pipeline, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return cfg, nil, err
	}
	logger := logging.New(cfg.Log, a.stderr)
	codec := a.codec
	if codec == nil {
		codec = pdf.NewPDFCPU(pdf.WithRelaxedValidation(cfg.Codec.RelaxedValidation))
	}
	return cfg, pipeline.New(codec, cfg, logger), nil
}

// run executes req and prints its result.
func (a *App) run(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request) error {
	report := func(percent int) {
		if !a.quiet {
			fmt.Fprintf(a.stderr, "\r%s: %3d%%", req.Operation, percent)
		}
	}
	res := p.Run(ctx, req, report)
	if !a.quiet {
		fmt.Fprintln(a.stderr)
	}
	if err := a.print(res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s failed (%s): %s", req.Operation, res.Kind, res.Error)
	}
	return nil
}

func (a *App) print(res models.Result) error {
	if a.jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	for _, f := range res.Files {
		if !f.Success {
			fmt.Fprintf(a.stdout, "FAILED  %s: %s\n", f.Input, f.Error)
		}
	}
	for _, o := range res.Outputs {
		fmt.Fprintf(a.stdout, "wrote   %s\n", o)
	}
	if m := res.Metrics; m.OriginalBytes > 0 && m.NewBytes > 0 {
		fmt.Fprintf(a.stdout, "size    %d -> %d bytes (%.1f%% reduction)\n", m.OriginalBytes, m.NewBytes, m.Reduction())
	}
	if res.Kind == models.KindPartialBatchFailure {
		fmt.Fprintf(a.stdout, "warning %s\n", res.Error)
	}
	return nil
}
