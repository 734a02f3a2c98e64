package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vango-dev/waypoint/internal/errors"
	"github.com/vango-dev/waypoint/pkg/inspect"
)

func matchCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "match <href>",
		Short: "Show the routes an href matches",
		Long: `Resolve an href to its route chain without running loaders.

Params are bound and search is validated; beforeLoad hooks and loaders
do not run.

Examples:
  waypoint match /posts/42
  waypoint match '/search?q=go' --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.close()

			matches, err := a.router.MatchRoutes(cmd.Context(), args[0])
			if err != nil {
				return errors.Classify(err, errors.CodeInvalidPath)
			}
			views := inspect.NewMatchViews(matches)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), inspect.MatchesView{Matches: views})
			}
			printMatches(cmd.OutOrStdout(), views)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func printMatches(w io.Writer, matches []inspect.MatchView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTE\tPATHNAME\tPARAMS\tSTATUS")
	for _, m := range matches {
		status := m.Status
		if m.Error != "" {
			status += ": " + m.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.RouteID, m.Pathname, formatParams(m.Params), status)
	}
	tw.Flush()
}

func formatParams(params map[string]string) string {
	if len(params) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return strings.Join(parts, ",")
}
