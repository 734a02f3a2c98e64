package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/vango-dev/waypoint/pkg/inspect"
)

func routesCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the route tree",
		Long: `Print the route tree of the manifest, depth first.

Examples:
  waypoint routes
  waypoint routes --manifest=s3://my-bucket/routes.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.close()

			routes := inspect.NewRouteViews(a.router.Tree())
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), routes)
			}
			printRoutes(cmd.OutOrStdout(), routes)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func printRoutes(w io.Writer, routes []inspect.RouteView) {
	for _, r := range routes {
		line := strings.Repeat("  ", r.Depth) + r.ID
		if r.HasLoader {
			line += "  " + gray("[loader]")
		}
		fmt.Fprintln(w, line)
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func gray(s string) string { return "\033[90m" + s + "\033[0m" }
