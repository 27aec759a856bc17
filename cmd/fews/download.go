package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmann1123/gwu-haiti-project/collectors"
	"github.com/mmann1123/gwu-haiti-project/shared"
)

var (
	downloadStart   string
	downloadEnd     string
	downloadProduct string
	downloadMarket  string
	downloadOutput  string
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download prices to a CSV file without touching the database",
	Example: `  fews download --start 2020-01-01 --end 2024-12-31
  fews download --product "Rice (Imported)" --output rice.csv`,
	Args: cobra.NoArgs,
	RunE: runDownload,
}

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Test the API connection and list available markets and commodities",
	Args:  cobra.NoArgs,
	RunE:  runExplore,
}

func init() {
	downloadCmd.Flags().StringVar(&downloadStart, "start", "", "first date to fetch (YYYY-MM-DD)")
	downloadCmd.Flags().StringVar(&downloadEnd, "end", "", "last date to fetch (YYYY-MM-DD), defaults to today")
	downloadCmd.Flags().StringVar(&downloadProduct, "product", "", "only fetch this product")
	downloadCmd.Flags().StringVar(&downloadMarket, "market", "", "only fetch this market")
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "file name inside the data directory")
}

func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q, expected YYYY-MM-DD", name, value)
	}
	return t, nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	start, err := parseDateFlag("start", downloadStart)
	if err != nil {
		return err
	}
	end, err := parseDateFlag("end", downloadEnd)
	if err != nil {
		return err
	}
	if !start.IsZero() && end.IsZero() {
		end = time.Now().UTC()
	}

	client := newClient()
	records, err := client.GetMarketPricesRange(cmd.Context(), collectors.PriceQuery{
		CountryCode: cfg.API.CountryCode,
		StartDate:   start,
		EndDate:     end,
		Product:     downloadProduct,
		Market:      downloadMarket,
	}, cfg.API.ChunkMonths)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No data retrieved")
		return nil
	}

	name := downloadOutput
	if name == "" {
		name = fmt.Sprintf("fewsnet_%s_prices_%s.csv",
			strings.ToLower(cfg.API.CountryCode), time.Now().Format("20060102_150405"))
	}
	path, err := shared.WriteSnapshot(cfg.DataDir, name, func(w io.Writer) error {
		return collectors.WritePricesCSV(w, records)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %d records to %s\n", len(records), path)
	printDownloadSummary(cmd.OutOrStdout(), records)
	return nil
}

func printDownloadSummary(out io.Writer, records []collectors.PriceRecord) {
	markets := make(map[string]struct{})
	products := make(map[string]struct{})
	var first, last time.Time
	for _, r := range records {
		markets[r.Market] = struct{}{}
		products[r.Product] = struct{}{}
		if t, err := r.Period(); err == nil {
			if first.IsZero() || t.Before(first) {
				first = t
			}
			if t.After(last) {
				last = t
			}
		}
	}
	fmt.Fprintf(out, "  markets:  %d\n", len(markets))
	fmt.Fprintf(out, "  products: %d\n", len(products))
	if !first.IsZero() {
		fmt.Fprintf(out, "  dates:    %s to %s\n", first.Format(time.DateOnly), last.Format(time.DateOnly))
	}
}

func runExplore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	client := newClient()

	if err := client.TestConnection(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "API connection OK")

	markets, err := client.GetMarkets(ctx, cfg.API.CountryCode)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nMarkets (%d):\n", len(markets))
	for _, m := range markets {
		fmt.Fprintf(out, "  %s\n", m.Name)
	}

	commodities, err := client.GetCommodities(ctx, cfg.API.CountryCode)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nCommodities (%d):\n", len(commodities))
	for _, c := range commodities {
		fmt.Fprintf(out, "  %s\n", c)
	}
	return nil
}
