package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evcorridor/app"
	"github.com/kilianp07/evcorridor/core/model"
)

// scenarioFlags are shared by plan and simulate.
type scenarioFlags struct {
	year          int
	budget        float64
	pins          []string
	countExisting bool
	format        string
	out           string
}

func (f *scenarioFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.year, "year", "y", 2024, "forecast year")
	cmd.Flags().Float64VarP(&f.budget, "budget", "b", 0, "construction budget")
	cmd.Flags().StringSliceVarP(&f.pins, "pin", "p", nil, "force a tier on a segment, as segment=tier")
	cmd.Flags().BoolVar(&f.countExisting, "count-existing", false, "count installed ports in the dataset")
	cmd.Flags().StringVarP(&f.format, "format", "f", "json", "output format: json or csv")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output file, stdout when empty")
}

func (f *scenarioFlags) scenario() (app.Scenario, error) {
	if f.format != "json" && f.format != "csv" {
		return app.Scenario{}, fmt.Errorf("unknown format %q", f.format)
	}
	pins, err := parsePins(f.pins)
	if err != nil {
		return app.Scenario{}, err
	}
	return app.Scenario{Year: f.year, Budget: f.budget, Pins: pins, CountExisting: f.countExisting}, nil
}

// output opens the destination. The returned close func is a no-op for stdout.
func (f *scenarioFlags) output(cmd *cobra.Command) (io.Writer, func() error, error) {
	if f.out == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	file, err := os.Create(f.out)
	if err != nil {
		return nil, nil, err
	}
	return file, file.Close, nil
}

// parsePins reads entries like "12=large" or "12=2".
func parsePins(entries []string) (map[model.SegmentID]model.Tier, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	pins := make(map[model.SegmentID]model.Tier, len(entries))
	for _, e := range entries {
		id, tier, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("%w: pin %q is not segment=tier", model.ErrInvalidInput, e)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: pin %q: bad segment id", model.ErrInvalidInput, e)
		}
		t, err := model.ParseTier(strings.TrimSpace(tier))
		if err != nil {
			return nil, err
		}
		pins[model.SegmentID(n)] = t
	}
	return pins, nil
}
