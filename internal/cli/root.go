// Package cli provides the command-line interface for mchgeo.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/mchgeo/internal/config"
	"github.com/banshee-data/mchgeo/internal/db"
	"github.com/banshee-data/mchgeo/internal/featurestore"
	"github.com/banshee-data/mchgeo/internal/fsutil"
	"github.com/banshee-data/mchgeo/internal/httputil"
	"github.com/banshee-data/mchgeo/internal/mapping"
	"github.com/banshee-data/mchgeo/internal/monitoring"
	"github.com/banshee-data/mchgeo/internal/version"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	// Global flags
	configPath string
	envFile    string
	logLevel   string

	cfg      *config.Config
	fsys     fsutil.FileSystem
	client   httputil.HTTPClient // nil builds a StandardClient from config
	closeLog func() error
}

// NewRootCmd builds the mchgeo command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{fsys: fsutil.OSFileSystem{}})
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "mchgeo",
		Short: "Muon chamber detection element geometry",
		Long: `mchgeo builds the detection element geometry of the muon tracking chambers.

It fetches each element's 2D envelope from the mapping service, merges it
with the 3D alignment transformations and writes a GeoJSON-like feature
collection that can be queried, plotted, served and snapshotted.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// version and help need no configuration
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (.json, .yaml or .yml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading MCHGEO_* variables")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newFetchCmd(a))
	root.AddCommand(newCombineCmd(a))
	root.AddCommand(newGenerateCmd(a))
	root.AddCommand(newQueryCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newPlotCmd(a))
	root.AddCommand(newSnapshotCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

// setup loads configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}

	cfg := &config.Config{}
	if a.configPath != "" {
		var err error
		if cfg, err = config.Load(a.configPath); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = &a.logLevel
	}
	a.cfg = cfg

	logger, closeLog := monitoring.SetupLogger(cfg.GetLogFile(), monitoring.ParseLevel(cfg.GetLogLevel()))
	slog.SetDefault(logger)
	monitoring.Bridge(logger)
	a.closeLog = closeLog
	return nil
}

func (a *app) httpClient() httputil.HTTPClient {
	if a.client != nil {
		return a.client
	}
	return httputil.NewStandardClient(a.cfg.GetHTTPTimeout())
}

func (a *app) mappingClient() (*mapping.Client, error) {
	return mapping.NewClient(a.httpClient(), mapping.Config{
		BaseURL:           a.cfg.GetMappingURL(),
		RequestsPerSecond: a.cfg.GetRequestsPerSecond(),
	})
}

// writeFile creates the parent directory and writes data atomically.
func (a *app) writeFile(path string, data []byte) error {
	if err := a.fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return fsutil.WriteFileAtomic(a.fsys, path, data, 0644)
}

func (a *app) openDB() (*db.DB, error) {
	path := a.cfg.GetDBPath()
	if err := a.fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return db.NewDB(path)
}

// loadStore builds the feature store from the geometry file, or from a
// recorded run when snapshot is "latest" or a run id.
func (a *app) loadStore(ctx context.Context, snapshot string) (*featurestore.Store, error) {
	if snapshot == "" {
		return featurestore.Load(a.fsys, a.cfg.GeometryPath())
	}

	database, err := a.openDB()
	if err != nil {
		return nil, err
	}
	defer database.Close()

	id := snapshot
	if snapshot == "latest" {
		run, err := database.LatestRun(ctx)
		if err != nil {
			return nil, err
		}
		id = run.ID
	}
	features, err := database.RunFeatures(ctx, id)
	if err != nil {
		return nil, err
	}
	return featurestore.New(features)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}
