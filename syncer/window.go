package syncer

import (
	"time"

	"github.com/mmann1123/gwu-haiti-project/collectors"
)

// ComputeWindow returns the date range an incremental sync should fetch.
// Without a watermark the whole history up to today is fetched. Otherwise the
// window starts the day after the watermark, moved back by lookbackDays to
// pick up late revisions, but never before historyStart. upToDate is true when
// the window would start after today.
func ComputeWindow(last *time.Time, today, historyStart time.Time, lookbackDays int) (w collectors.Window, upToDate bool) {
	today = day(today)
	historyStart = day(historyStart)

	start := historyStart
	if last != nil {
		start = day(*last).AddDate(0, 0, 1-lookbackDays)
		if start.Before(historyStart) {
			start = historyStart
		}
	}

	w = collectors.Window{Start: start, End: today}
	return w, w.Empty()
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
