package cli

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/mchgeo/internal/db"
	"github.com/banshee-data/mchgeo/internal/feature"
	"github.com/banshee-data/mchgeo/internal/featurestore"
	"github.com/banshee-data/mchgeo/internal/security"
)

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage recorded geometry runs",
	}
	cmd.AddCommand(newSnapshotRecordCmd(a))
	cmd.AddCommand(newSnapshotListCmd(a))
	cmd.AddCommand(newSnapshotExportCmd(a))
	cmd.AddCommand(newSnapshotDeleteCmd(a))
	return cmd
}

// withDB opens the snapshot database for the duration of fn.
func (a *app) withDB(fn func(*db.DB) error) error {
	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(database)
}

func newSnapshotRecordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Record the current geometry file as a new run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := featurestore.Load(a.fsys, a.cfg.GeometryPath())
			if err != nil {
				return err
			}
			return a.withDB(func(database *db.DB) error {
				run, err := database.RecordRun(cmd.Context(), db.RunMeta{
					EnvelopeSource:       a.cfg.EnvelopePath(),
					TransformationSource: a.cfg.TransformationPath(),
				}, store.Features())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded snapshot %s (%d features)\n", run.ID, run.FeatureCount)
				return nil
			})
		},
	}
}

func newSnapshotListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(database *db.DB) error {
				runs, err := database.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN ID\tCREATED\tFEATURES\tENVELOPES\tTRANSFORMATIONS")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.CreatedAt.Format(time.RFC3339), r.FeatureCount, r.EnvelopeSource, r.TransformationSource)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs (0 for all)")
	return cmd
}

func newSnapshotExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <run-id|latest>",
		Short: "Write a recorded run as a feature collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out == "" {
				return feature.Encode(cmd.OutOrStdout(), store.Features())
			}
			if err := security.ValidateOutputPath(out, a.cfg.GetDataDir()); err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := feature.Encode(&buf, store.Features()); err != nil {
				return err
			}
			if err := a.writeFile(out, buf.Bytes()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d features to %s\n", store.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	return cmd
}

func newSnapshotDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(func(database *db.DB) error {
				if err := database.DeleteRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted snapshot %s\n", args[0])
				return nil
			})
		},
	}
}
