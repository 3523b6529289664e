package cli

import (
	"github.com/spf13/cobra"

	"github.com/banshee-data/mchgeo/internal/deid"
	"github.com/banshee-data/mchgeo/internal/featurestore"
)

func newQueryCmd(a *app) *cobra.Command {
	var snapshot string
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Look up one detection element in the merged geometry",
	}
	cmd.PersistentFlags().StringVar(&snapshot, "from-snapshot", "", `read from a recorded run ("latest" or a run id) instead of the geometry file`)

	// lookup wires one store accessor as a subcommand taking a deid.
	lookup := func(use, short string, get func(s *featurestore.Store, id int) (any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <deid>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := deid.Parse(args[0])
				if err != nil {
					return err
				}
				store, err := a.loadStore(cmd.Context(), snapshot)
				if err != nil {
					return err
				}
				v, err := get(store, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			},
		}
	}

	cmd.AddCommand(lookup("feature", "Print the full feature", func(s *featurestore.Store, id int) (any, error) {
		return s.Feature(id)
	}))
	cmd.AddCommand(lookup("polygon", "Print the envelope polygon", func(s *featurestore.Store, id int) (any, error) {
		return s.Polygon(id)
	}))
	cmd.AddCommand(lookup("transformation", "Print the alignment parameters", func(s *featurestore.Store, id int) (any, error) {
		return s.Transformation(id)
	}))
	cmd.AddCommand(lookup("offset", "Print the planar offset", func(s *featurestore.Store, id int) (any, error) {
		return s.Offset(id)
	}))

	var radians bool
	matrix := lookup("matrix", "Print the rotation matrix built from yaw, pitch and roll", func(s *featurestore.Store, id int) (any, error) {
		degrees := a.cfg.AnglesInDegrees() && !radians
		m, err := s.Matrix(id, degrees)
		if err != nil {
			return nil, err
		}
		return m.Rows(), nil
	})
	matrix.Flags().BoolVar(&radians, "radians", false, "treat the stored angles as radians")
	cmd.AddCommand(matrix)
	return cmd
}
