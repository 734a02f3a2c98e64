package main

import (
	"github.com/spf13/cobra"

	"github.com/vango-dev/waypoint/internal/errors"
)

func validateCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [manifest]",
		Short: "Check a manifest",
		Long: `Parse a manifest and build its route tree, reporting every problem.

Examples:
  waypoint validate
  waypoint validate routes.toml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			location := flags.manifestLocation(cfg)
			if len(args) == 1 {
				location = args[0]
			}

			m, err := loadManifest(cmd.Context(), cfg, location, newLogger(cfg))
			if err != nil {
				return err
			}
			tree, err := m.Tree()
			if err != nil {
				return errors.Classify(err, errors.CodeInvalidTree)
			}
			success("%s: %d routes", m.Source, tree.Len())
			return nil
		},
	}
	return cmd
}
