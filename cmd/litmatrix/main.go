package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zombar/litmatrix/internal/config"
	"github.com/zombar/litmatrix/internal/database"
	"github.com/zombar/litmatrix/internal/export"
	"github.com/zombar/litmatrix/internal/llm"
	"github.com/zombar/litmatrix/internal/session"
	"github.com/zombar/litmatrix/pkg/logging"
)

// localSession is the store namespace used by the command line
const localSession = "local"

type app struct {
	out        io.Writer
	errOut     io.Writer
	configPath string
	dbPath     string
	verbose    bool

	// open returns the local session controller and a func releasing its resources
	open func(a *app) (*session.Controller, func(), error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{out: os.Stdout, errOut: os.Stderr, open: openLocal}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		stop()
		printError(os.Stderr, "Error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "litmatrix",
		Short: "Litigation evidence matrix reports from case facts and evidence",
		Long: `litmatrix sends your case facts, claims and evidence annotations to an LLM
and produces a structured litigation report: evidence matrix, reinforcement
suggestions, risks, anticipated arguments, statutes and comparable cases.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.errOut)

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("LITMATRIX_CONFIG"), "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", defaultDBPath(), "Local database file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log pipeline details to stderr")

	rootCmd.AddCommand(
		newAnalyzeCmd(a),
		newReportCmd(a),
		newExportCmd(a),
		newBragCmd(a),
		newKeyCmd(a),
		newDraftCmd(a),
		newResetCmd(a),
	)
	return rootCmd
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "litmatrix.db"
	}
	return filepath.Join(dir, "litmatrix", "litmatrix.db")
}

// openLocal wires the pipeline over a local SQLite file
func openLocal(a *app) (*session.Controller, func(), error) {
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	slog.SetDefault(logging.New(a.errOut, "text", level))

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if dir := filepath.Dir(a.dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := database.New(a.dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, err
	}

	client, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLMTimeout(),
	}, nil)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	embedded := cfg.LLM.EmbeddedKey
	if embedded == "" {
		embedded = llm.EmbeddedKey
	}

	c := session.NewController(localSession, db, session.Deps{
		Inferer: client,
		Exporter: export.NewExporter(&export.RodRasterizer{
			ControlURL: cfg.Export.ChromeControlURL,
			Bin:        cfg.Export.ChromeBin,
			Width:      cfg.Export.Width,
			Timeout:    cfg.ExportTimeout(),
		}, nil),
		EmbeddedKey: embedded,
	})
	return c, func() { db.Close() }, nil
}

// withController runs fn against the local session
func (a *app) withController(fn func(c *session.Controller) error) error {
	c, closeFn, err := a.open(a)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(c)
}

// userError turns a pipeline error into its remediation text
func userError(err error) error {
	if err == nil {
		return nil
	}
	kind, text := session.UserMessage(err)
	return fmt.Errorf("%s [%s]", text, kind)
}
