package cli

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/mchgeo/internal/deid"
	"github.com/banshee-data/mchgeo/internal/render"
	"github.com/banshee-data/mchgeo/internal/security"
)

func newPlotCmd(a *app) *cobra.Command {
	var (
		outDir   string
		format   string
		chamber  int
		snapshot string
	)
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Draw the envelopes of each chamber",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if chamber < 0 || chamber > deid.Chambers {
				return fmt.Errorf("chamber must be between 1 and %d", deid.Chambers)
			}
			if err := security.ValidateOutputPath(outDir, a.cfg.GetDataDir()); err != nil {
				return err
			}
			store, err := a.loadStore(cmd.Context(), snapshot)
			if err != nil {
				return err
			}
			features := store.Features()

			if chamber == 0 {
				if err := a.fsys.MkdirAll(outDir, 0755); err != nil {
					return err
				}
				paths, err := render.SaveChambers(features, outDir, format)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			}

			var buf bytes.Buffer
			if err := render.WriteChamber(&buf, features, chamber, format); err != nil {
				return err
			}
			path := filepath.Join(outDir, fmt.Sprintf("chamber_%02d.%s", chamber, format))
			if err := a.writeFile(path, buf.Bytes()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "plots", "output directory")
	cmd.Flags().StringVar(&format, "format", "png", "image format: png, svg or pdf")
	cmd.Flags().IntVar(&chamber, "chamber", 0, "draw a single chamber (default: every populated chamber)")
	cmd.Flags().StringVar(&snapshot, "from-snapshot", "", `draw a recorded run ("latest" or a run id) instead of the geometry file`)
	return cmd
}
