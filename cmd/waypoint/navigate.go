package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/vango-dev/waypoint/internal/errors"
	"github.com/vango-dev/waypoint/pkg/inspect"
	"github.com/vango-dev/waypoint/pkg/navigation"
)

func navigateCmd(flags *globalFlags) *cobra.Command {
	var (
		replace bool
		preload bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "navigate <href>...",
		Short: "Navigate and print the committed state",
		Long: `Navigate to each href in turn and print the final router state.

Redirects are followed and loaders run, so the output shows the loader
data and not-found or error outcomes a client would render.

Examples:
  waypoint navigate /posts/42
  waypoint navigate /login /dashboard --json
  waypoint navigate --preload /posts`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			if preload {
				for _, href := range args {
					matches, err := a.router.Preload(cmd.Context(), navigation.NavigateOptions{Href: href})
					if err != nil {
						return errors.Classify(err, errors.CodeLoaderFailed)
					}
					views := inspect.NewMatchViews(matches)
					if asJSON {
						if err := writeJSON(out, inspect.MatchesView{Matches: views}); err != nil {
							return err
						}
						continue
					}
					fmt.Fprintf(out, "preloaded %s\n", href)
					printMatches(out, views)
				}
				return nil
			}

			for _, href := range args {
				if err := a.router.Navigate(cmd.Context(), navigation.NavigateOptions{Href: href, Replace: replace}); err != nil {
					return errors.Classify(err, errors.CodeLoaderFailed)
				}
			}

			state := inspect.NewStateView(a.router.State())
			if asJSON {
				return writeJSON(out, state)
			}
			printState(out, state)
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Replace history entries instead of pushing")
	cmd.Flags().BoolVar(&preload, "preload", false, "Preload without committing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func printState(w io.Writer, s inspect.StateView) {
	fmt.Fprintf(w, "%s  %d\n\n", s.Location.Href, s.StatusCode)
	printMatches(w, s.Matches)

	for _, m := range s.Matches {
		if m.LoaderData == nil {
			continue
		}
		data, err := json.Marshal(m.LoaderData)
		if err != nil {
			data = []byte(fmt.Sprint(m.LoaderData))
		}
		fmt.Fprintf(w, "\n%s %s\n", gray(m.RouteID+":"), data)
	}
}
