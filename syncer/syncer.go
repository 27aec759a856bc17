package syncer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmann1123/gwu-haiti-project/collectors"
	"github.com/mmann1123/gwu-haiti-project/pricedb"
	"github.com/mmann1123/gwu-haiti-project/shared"
)

// PriceSource is the part of the FEWS NET client a sync needs.
type PriceSource interface {
	TestConnection(ctx context.Context) error
	GetMarketPricesRange(ctx context.Context, q collectors.PriceQuery, chunkMonths int) ([]collectors.PriceRecord, error)
}

// PriceStore is the part of the database a sync needs.
type PriceStore interface {
	CreateTables(ctx context.Context) error
	LastSyncDate(ctx context.Context) (time.Time, bool, error)
	SyncRecords(ctx context.Context, records []collectors.PriceRecord) (pricedb.SyncStats, error)
	LogImport(ctx context.Context, e pricedb.ImportEntry) error
}

// Enricher fills in missing record attributes before they are stored.
type Enricher interface {
	Enrich(records []collectors.PriceRecord) int
}

type Options struct {
	CountryCode  string
	HistoryStart time.Time
	LookbackDays int
	ChunkMonths  int

	// SnapshotDir enables a CSV copy of every fetch when set.
	SnapshotDir string
	Enricher    Enricher

	Now func() time.Time
}

// Result describes a finished run.
type Result struct {
	RunID        string            `json:"run_id"`
	Mode         string            `json:"mode"`
	Window       collectors.Window `json:"-"`
	UpToDate     bool              `json:"up_to_date"`
	Fetched      int               `json:"fetched"`
	Enriched     int               `json:"enriched"`
	Stats        pricedb.SyncStats `json:"stats"`
	SnapshotPath string            `json:"snapshot_path,omitempty"`
}

type Syncer struct {
	source PriceSource
	store  PriceStore
	opts   Options
	log    *zap.Logger
}

func New(source PriceSource, store PriceStore, opts Options, log *zap.Logger) *Syncer {
	if opts.CountryCode == "" {
		opts.CountryCode = collectors.DefaultCountryCode
	}
	if opts.HistoryStart.IsZero() {
		opts.HistoryStart = time.Date(2005, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Syncer{source: source, store: store, opts: opts, log: shared.OrNop(log)}
}

func (s *Syncer) today() time.Time {
	return day(s.opts.Now().UTC())
}

// Full fetches the complete history and upserts it.
func (s *Syncer) Full(ctx context.Context) (Result, error) {
	if err := s.store.CreateTables(ctx); err != nil {
		return Result{}, err
	}
	w := collectors.Window{Start: day(s.opts.HistoryStart), End: s.today()}
	return s.run(ctx, pricedb.ModeFull, w)
}

// Incremental fetches everything after the last successful sync. Nothing is
// fetched or logged when the database is already up to date.
func (s *Syncer) Incremental(ctx context.Context) (Result, error) {
	if err := s.store.CreateTables(ctx); err != nil {
		return Result{}, err
	}

	last, ok, err := s.store.LastSyncDate(ctx)
	if err != nil {
		return Result{}, err
	}
	var watermark *time.Time
	if ok {
		watermark = &last
		s.log.Info("last sync", zap.String("date", last.Format(time.DateOnly)))
	} else {
		s.log.Info("no previous sync found, fetching full history")
	}

	w, upToDate := ComputeWindow(watermark, s.today(), s.opts.HistoryStart, s.opts.LookbackDays)
	if upToDate {
		s.log.Info("database is up to date")
		return Result{Mode: pricedb.ModeIncremental, Window: w, UpToDate: true}, nil
	}
	return s.run(ctx, pricedb.ModeIncremental, w)
}

func (s *Syncer) run(ctx context.Context, mode string, w collectors.Window) (Result, error) {
	res := Result{RunID: uuid.NewString(), Mode: mode, Window: w}
	log := s.log.With(zap.String("run_id", res.RunID), zap.String("mode", mode))
	log.Info("starting sync", zap.Stringer("window", w))

	entry := pricedb.ImportEntry{
		RunID:      res.RunID,
		Mode:       mode,
		RangeStart: &w.Start,
		RangeEnd:   &w.End,
	}
	fail := func(err error) (Result, error) {
		entry.Status = pricedb.StatusFailed
		entry.ErrorMessage = err.Error()
		entry.RecordsFetched = res.Fetched
		entry.Stats = res.Stats
		if logErr := s.store.LogImport(context.WithoutCancel(ctx), entry); logErr != nil {
			log.Error("failed to record failed import", zap.Error(logErr))
		}
		log.Error("sync failed", zap.Error(err))
		return res, err
	}

	if err := s.source.TestConnection(ctx); err != nil {
		return fail(err)
	}

	records, err := s.source.GetMarketPricesRange(ctx, collectors.PriceQuery{
		CountryCode: s.opts.CountryCode,
		StartDate:   w.Start,
		EndDate:     w.End,
	}, s.opts.ChunkMonths)
	if err != nil {
		return fail(fmt.Errorf("failed to fetch prices for %s: %w", w, err))
	}
	res.Fetched = len(records)
	entry.RecordsFetched = res.Fetched

	if len(records) == 0 {
		log.Info("no new records")
		entry.Status = pricedb.StatusSuccess
		if err := s.store.LogImport(ctx, entry); err != nil {
			return res, err
		}
		return res, nil
	}

	if s.opts.Enricher != nil {
		res.Enriched = s.opts.Enricher.Enrich(records)
	}

	if s.opts.SnapshotDir != "" {
		path, err := s.snapshot(records, w)
		if err != nil {
			log.Warn("failed to write snapshot", zap.Error(err))
		} else {
			res.SnapshotPath = path
			log.Info("snapshot written", zap.String("path", path))
		}
	}

	stats, err := s.store.SyncRecords(ctx, records)
	res.Stats = stats
	if err != nil {
		return fail(err)
	}

	entry.Status = pricedb.StatusSuccess
	entry.Stats = stats
	if err := s.store.LogImport(ctx, entry); err != nil {
		return res, err
	}
	log.Info("sync complete",
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors))
	return res, nil
}

// SnapshotName is the CSV file name used for a fetch of window w.
func SnapshotName(countryCode string, w collectors.Window) string {
	return fmt.Sprintf("fewsnet_%s_prices_%s_%s.csv",
		strings.ToLower(countryCode),
		w.Start.Format("20060102"),
		w.End.Format("20060102"))
}

func (s *Syncer) snapshot(records []collectors.PriceRecord, w collectors.Window) (string, error) {
	return shared.WriteSnapshot(s.opts.SnapshotDir, SnapshotName(s.opts.CountryCode, w), func(out io.Writer) error {
		return collectors.WritePricesCSV(out, records)
	})
}
