package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmann1123/gwu-haiti-project/pricedb"
)

var importsLimit int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database totals and recent imports",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Run a SQL query against the database",
	Example: `  fews query "SELECT * FROM v_latest_prices LIMIT 10"
  fews query "SELECT product, COUNT(*) FROM v_prices GROUP BY product"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	statsCmd.Flags().IntVar(&importsLimit, "imports", 5, "number of recent imports to list")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.CreateTables(ctx); err != nil {
		return err
	}
	st, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	imports, err := store.RecentImports(ctx, importsLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Observations: %d\n", st.TotalObservations)
	fmt.Fprintf(out, "Markets:      %d\n", st.TotalMarkets)
	fmt.Fprintf(out, "Products:     %d\n", st.TotalProducts)
	fmt.Fprintf(out, "Units:        %d\n", st.TotalUnits)
	if st.DateMin != nil && st.DateMax != nil {
		fmt.Fprintf(out, "Date range:   %s to %s\n", st.DateMin.Format(time.DateOnly), st.DateMax.Format(time.DateOnly))
	}
	if st.LastImport != nil {
		fmt.Fprintf(out, "Last import:  %s\n", st.LastImport.Format(time.RFC3339))
	}

	if len(imports) > 0 {
		fmt.Fprintln(out)
		printImports(out, imports)
	}
	return nil
}

func printImports(out io.Writer, imports []pricedb.ImportEntry) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tMODE\tSTATUS\tFETCHED\tINSERTED\tUPDATED\tRANGE")
	for _, e := range imports {
		dateRange := ""
		if e.RangeStart != nil && e.RangeEnd != nil {
			dateRange = e.RangeStart.Format(time.DateOnly) + ".." + e.RangeEnd.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			e.ImportDate.Format("2006-01-02 15:04"), e.Mode, e.Status,
			e.RecordsFetched, e.Stats.Inserted, e.Stats.Updated, dateRange)
	}
	tw.Flush()
}

func runQuery(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.Query(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printTable(cmd.OutOrStdout(), res)
	return nil
}

func printTable(out io.Writer, res *pricedb.QueryResult) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(out, "(%d rows)\n", len(res.Rows))
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
