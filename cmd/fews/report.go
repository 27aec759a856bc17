package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmann1123/gwu-haiti-project/reports"
)

var (
	exportPath string
	exportWait time.Duration

	availabilityCommodity string
	availabilityCurrency  string
	availabilityMinMonths int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all observations to a flat SQLite file",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var availabilityCmd = &cobra.Command{
	Use:   "availability",
	Short: "Show which markets have enough history to forecast a commodity",
	Example: `  fews availability --commodity "Rice (Local)"
  fews availability --commodity "Black Beans" --currency USD --min-months 36`,
	Args: cobra.NoArgs,
	RunE: runAvailability,
}

func init() {
	exportCmd.Flags().StringVar(&exportPath, "sqlite", "", "output file, defaults to fews_haiti.sqlite in the data directory")
	exportCmd.Flags().DurationVar(&exportWait, "wait", 0, "wait up to this long for price data to appear before exporting")

	availabilityCmd.Flags().StringVar(&availabilityCommodity, "commodity", "", "product name")
	availabilityCmd.Flags().StringVar(&availabilityCurrency, "currency", reports.CurrencyHTG, "HTG or USD")
	availabilityCmd.Flags().IntVar(&availabilityMinMonths, "min-months", reports.DefaultMinMonths, "months of history required")
	_ = availabilityCmd.MarkFlagRequired("commodity")
}

func runExport(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	if exportWait > 0 {
		ctx, cancel := context.WithTimeout(cmd.Context(), exportWait)
		defer cancel()
		if err := reports.WaitForTablesReady(ctx, store.DB(), logger, 5*time.Second, reports.SourceTables...); err != nil {
			return fmt.Errorf("price data not ready: %w", err)
		}
	}

	path := exportPath
	if path == "" {
		path = filepath.Join(cfg.DataDir, "fews_haiti.sqlite")
	}
	n, err := newReports(store).ExportSQLite(cmd.Context(), path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d observations to %s\n", n, path)
	return nil
}

func runAvailability(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	points, err := newReports(store).PriceSeries(cmd.Context(), availabilityCommodity, availabilityCurrency)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(points) == 0 {
		fmt.Fprintf(out, "No %s prices for %s\n", availabilityCurrency, availabilityCommodity)
		return nil
	}

	availability := reports.CheckAvailability(points, availabilityMinMonths)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MARKET\tOBSERVATIONS\tMONTHS\tSUFFICIENT\tREASON")
	for _, a := range availability {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%t\t%s\n", a.Market, a.Observations, a.MonthsSpan, a.Sufficient, a.Reason)
	}
	tw.Flush()

	sufficient := reports.SufficientMarkets(availability)
	fmt.Fprintf(out, "\n%d of %d markets have at least %d months of data\n",
		len(sufficient), len(availability), availabilityMinMonths)
	if avg := reports.MarketAverage(points, sufficient); len(avg) > 0 {
		latest := avg[len(avg)-1]
		fmt.Fprintf(out, "Market average on %s: %s %s\n",
			latest.Date.Format("2006-01-02"), latest.Price.StringFixed(2), availabilityCurrency)
	}
	return nil
}
