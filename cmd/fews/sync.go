package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmann1123/gwu-haiti-project/syncer"
)

var snapshotFlag bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database schema",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var fullCmd = &cobra.Command{
	Use:   "full",
	Short: "Download the complete price history and upsert it",
	Args:  cobra.NoArgs,
	RunE:  runFull,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch prices published since the last successful sync",
	Long: `Fetches prices from the day after the last successful import up to today
and upserts them. When the database is already current nothing is fetched.
A failed fetch is recorded in the import log and the command exits with status 1.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	for _, c := range []*cobra.Command{fullCmd, syncCmd} {
		c.Flags().BoolVar(&snapshotFlag, "snapshot", false, "also write the fetched rows to a CSV file in the data directory")
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.CreateTables(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Database initialized")
	return nil
}

func runFull(cmd *cobra.Command, args []string) error {
	return runSyncMode(cmd, true)
}

func runSync(cmd *cobra.Command, args []string) error {
	return runSyncMode(cmd, false)
}

func runSyncMode(cmd *cobra.Command, full bool) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	s, err := newSyncer(store, newClient(), snapshotFlag)
	if err != nil {
		return err
	}

	var res syncer.Result
	if full {
		res, err = s.Full(cmd.Context())
	} else {
		res, err = s.Incremental(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}

func printResult(w io.Writer, res syncer.Result) {
	if res.UpToDate {
		fmt.Fprintln(w, "Database is up to date")
		return
	}
	fmt.Fprintf(w, "Run %s (%s) %s to %s\n", res.RunID, res.Mode,
		res.Window.Start.Format(time.DateOnly), res.Window.End.Format(time.DateOnly))
	fmt.Fprintf(w, "  fetched:  %d\n", res.Fetched)
	fmt.Fprintf(w, "  inserted: %d\n", res.Stats.Inserted)
	fmt.Fprintf(w, "  updated:  %d\n", res.Stats.Updated)
	fmt.Fprintf(w, "  skipped:  %d\n", res.Stats.Skipped)
	fmt.Fprintf(w, "  errors:   %d\n", res.Stats.Errors)
	if res.Enriched > 0 {
		fmt.Fprintf(w, "  geocoded: %d\n", res.Enriched)
	}
	if res.SnapshotPath != "" {
		fmt.Fprintf(w, "  snapshot: %s\n", res.SnapshotPath)
	}
}
