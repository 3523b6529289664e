package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/mchgeo/internal/combiner"
	"github.com/banshee-data/mchgeo/internal/db"
	"github.com/banshee-data/mchgeo/internal/deid"
	"github.com/banshee-data/mchgeo/internal/feature"
	"github.com/banshee-data/mchgeo/internal/mapping"
)

type fetchFlags struct {
	ids     []int
	bending bool
}

func (f *fetchFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntSliceVar(&f.ids, "deid", nil, "detection elements to fetch (default: all)")
	cmd.Flags().BoolVar(&f.bending, "bending", true, "fetch the bending plane envelopes")
}

// resolve applies flag overrides on top of the configuration.
func (f *fetchFlags) resolve(cmd *cobra.Command, a *app) ([]int, bool, error) {
	ids := f.ids
	if len(ids) == 0 {
		ids = deid.All()
	}
	for _, id := range ids {
		if !deid.IsValid(id) {
			return nil, false, fmt.Errorf("%d is not a valid detection element ID", id)
		}
	}
	bending := a.cfg.GetBending()
	if cmd.Flags().Changed("bending") {
		bending = f.bending
	}
	return ids, bending, nil
}

// fetchEnvelopes queries the mapping service and writes the envelope
// document. Nothing is written if any query fails.
func (a *app) fetchEnvelopes(ctx context.Context, ids []int, bending bool) (int, error) {
	client, err := a.mappingClient()
	if err != nil {
		return 0, err
	}
	fragments, err := client.FetchAll(ctx, ids, bending)
	if err != nil {
		return 0, err
	}
	doc, err := mapping.EnvelopeDocument(fragments)
	if err != nil {
		return 0, err
	}
	if err := a.writeFile(a.cfg.EnvelopePath(), doc); err != nil {
		return 0, err
	}
	return len(fragments), nil
}

// combine merges the envelope and alignment documents into the geometry
// file and optionally records the result as a snapshot.
func (a *app) combine(ctx context.Context, snapshot bool) ([]feature.Feature, string, error) {
	if err := a.fsys.MkdirAll(filepath.Dir(a.cfg.GeometryPath()), 0755); err != nil {
		return nil, "", err
	}
	features, err := combiner.CombineFiles(a.fsys,
		a.cfg.EnvelopePath(), a.cfg.TransformationPath(), a.cfg.GeometryPath(),
		combiner.Options{FirstMatchWins: a.cfg.GetFirstMatchWins()})
	if err != nil {
		return nil, "", err
	}
	if !snapshot {
		return features, "", nil
	}

	database, err := a.openDB()
	if err != nil {
		return nil, "", err
	}
	defer database.Close()
	run, err := database.RecordRun(ctx, db.RunMeta{
		EnvelopeSource:       a.cfg.EnvelopePath(),
		TransformationSource: a.cfg.TransformationPath(),
	}, features)
	if err != nil {
		return nil, "", err
	}
	return features, run.ID, nil
}

func printCombined(cmd *cobra.Command, a *app, n int, runID string) {
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d features to %s\n", n, a.cfg.GeometryPath())
	if runID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "recorded snapshot %s\n", runID)
	}
}

func newFetchCmd(a *app) *cobra.Command {
	var flags fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch detection element envelopes from the mapping service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, bending, err := flags.resolve(cmd, a)
			if err != nil {
				return err
			}
			n, err := a.fetchEnvelopes(cmd.Context(), ids, bending)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d envelopes to %s\n", n, a.cfg.EnvelopePath())
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newCombineCmd(a *app) *cobra.Command {
	var snapshot bool
	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Merge envelopes and alignment transformations into the geometry file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			features, runID, err := a.combine(cmd.Context(), snapshot)
			if err != nil {
				return err
			}
			printCombined(cmd, a, len(features), runID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "record the result in the snapshot database")
	return cmd
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		flags    fetchFlags
		snapshot bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Fetch envelopes, then combine them with the alignment transformations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, bending, err := flags.resolve(cmd, a)
			if err != nil {
				return err
			}
			if _, err := a.fetchEnvelopes(cmd.Context(), ids, bending); err != nil {
				return err
			}
			features, runID, err := a.combine(cmd.Context(), snapshot)
			if err != nil {
				return err
			}
			printCombined(cmd, a, len(features), runID)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "record the result in the snapshot database")
	return cmd
}
