// Package report writes result snapshots to disk and renders the console
// summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/atlas-desktop/unitsim/pkg/types"
	"github.com/leekchan/accounting"
)

// WriteJSON serialises results to path. The file is written to a temporary
// sibling first and renamed into place, so readers never see a partial
// snapshot.
func WriteJSON(path string, results *types.Results) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move results into place: %w", err)
	}
	return nil
}

// ReadJSON loads a snapshot previously written by WriteJSON.
func ReadJSON(path string) (*types.Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var results types.Results
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &results, nil
}

var money = accounting.Accounting{Precision: 0, Thousand: ",", Decimal: "."}

// PrintSummary renders the risk-free baseline and the per-policy
// terminal statistics as aligned tables.
func PrintSummary(w io.Writer, results *types.Results) error {
	names := make([]string, 0, len(results.PnL))
	for name := range results.PnL {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(tw, "Risk-free baseline (%d runs x %d years, seed %d)\t\t\t\t\t\n",
		results.Meta.NRuns, results.Meta.NYears, results.Meta.Seed)
	fmt.Fprintln(tw, "asset\tprofit/unit/cycle\tprofit/year\tcapital\treturn/year\tevents/year\t")
	for _, name := range names {
		s := results.PnL[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t\n",
			name,
			money.FormatMoney(s.ProfitUnitCycle),
			money.FormatMoney(s.ProfitTotalYear),
			money.FormatMoney(s.CapitalTotal),
			pct(s.ReturnYear),
			s.NEventsYear,
		)
	}

	for _, policy := range types.Policies {
		byAsset, ok := results.Simulation[policy]
		if !ok {
			continue
		}
		fmt.Fprintln(tw, "\t\t\t\t\t\t")
		fmt.Fprintf(tw, "%s\t\t\t\t\t\t\n", policy)
		fmt.Fprintln(tw, "asset\treturn mean\treturn p10\treturn p90\tvolatility\tfinal units\t")
		for _, name := range names {
			res, ok := byAsset[name]
			if !ok {
				continue
			}
			s := res.Summary
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t\n",
				name,
				pct(s.ReturnMean),
				pct(s.ReturnP10),
				pct(s.ReturnP90),
				pct(s.Volatility),
				s.UnitsFinalMean,
			)
		}
	}
	return tw.Flush()
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}
