package collectors

import (
	"fmt"
	"time"
)

// Window is an inclusive range of calendar dates.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
}

// Empty reports whether the window contains no days.
func (w Window) Empty() bool {
	return w.Start.After(w.End)
}

// SplitWindows cuts [start, end] into consecutive, non-overlapping windows of
// at most months calendar months each.
func SplitWindows(start, end time.Time, months int) []Window {
	start = truncateDay(start)
	end = truncateDay(end)
	if start.After(end) {
		return nil
	}
	if months <= 0 {
		return []Window{{Start: start, End: end}}
	}

	var windows []Window
	for s := start; !s.After(end); {
		e := s.AddDate(0, months, -1)
		if e.After(end) {
			e = end
		}
		windows = append(windows, Window{Start: s, End: e})
		s = e.AddDate(0, 0, 1)
	}
	return windows
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
