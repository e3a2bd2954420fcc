package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/replay"
)

// errMismatch marks a run where at least one fixture failed.
var errMismatch = errors.New("replay mismatches")

// #region main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errMismatch) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	var (
		workers int
		jsonOut bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:          "replay <fixture.json|dir>...",
		Short:        "Replay scripted conversations and check every step",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPaths(args)
			if err != nil {
				return err
			}
			fixtures := make([]replay.Named, 0, len(paths))
			for _, p := range paths {
				f, err := replay.LoadFixture(p)
				if err != nil {
					return err
				}
				fixtures = append(fixtures, replay.Named{Name: p, Fixture: f})
			}

			results, err := replay.RunAll(cmd.Context(), fixtures, workers)
			if err != nil {
				return err
			}
			summary := replay.Summarize(results)

			out := cmd.OutOrStdout()
			if jsonOut {
				err = printJSON(out, results, summary)
			} else {
				printReport(out, results, summary, verbose)
			}
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				return errMismatch
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "fixtures replayed concurrently")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every step")
	return cmd
}

// #endregion main

// #region paths

// expandPaths replaces directories with the *.json fixtures inside them.
func expandPaths(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		info, err := os.Stat(a)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, a)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(a, "*.json"))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: no *.json fixtures", a)
		}
		out = append(out, matches...)
	}
	return out, nil
}

// #endregion paths

// #region output

func printReport(out io.Writer, results []replay.ReplayResult, s replay.ReplaySummary, verbose bool) {
	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(out, "%s  %s (%d steps)\n", status, r.Name, len(r.Steps))
		if verbose {
			for _, st := range r.Steps {
				detail := st.Action
				if st.Outcome != "" {
					detail = st.Outcome
				}
				fmt.Fprintf(out, "    %3d  %-13s %-13s error=%s\n", st.Index, st.Op, detail, st.Error)
			}
		}
		for _, m := range r.Mismatches() {
			fmt.Fprintf(out, "    %s\n", m)
		}
	}
	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintf(out, "fixtures: %d  passed: %d  failed: %d  steps: %d\n", s.Fixtures, s.Passed, s.Failed, s.TotalSteps)
}

type jsonFixture struct {
	Name       string   `json:"name"`
	Passed     bool     `json:"passed"`
	Steps      int      `json:"steps"`
	Mismatches []string `json:"mismatches,omitempty"`
}

func printJSON(out io.Writer, results []replay.ReplayResult, s replay.ReplaySummary) error {
	doc := struct {
		Fixtures []jsonFixture        `json:"fixtures"`
		Summary  replay.ReplaySummary `json:"summary"`
	}{Summary: s}
	for _, r := range results {
		doc.Fixtures = append(doc.Fixtures, jsonFixture{
			Name:       r.Name,
			Passed:     r.Passed,
			Steps:      len(r.Steps),
			Mismatches: r.Mismatches(),
		})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// #endregion output
