package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func d(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestComputeWindow(t *testing.T) {
	history := d("2005-01-01")

	tests := []struct {
		name      string
		last      *time.Time
		today     time.Time
		lookback  int
		wantStart string
		wantEnd   string
		upToDate  bool
	}{
		{name: "no watermark", today: d("2024-06-10"), wantStart: "2005-01-01", wantEnd: "2024-06-10"},
		{name: "day after watermark", last: ptr(d("2024-06-01")), today: d("2024-06-10"), wantStart: "2024-06-02", wantEnd: "2024-06-10"},
		{name: "synced yesterday", last: ptr(d("2024-06-09")), today: d("2024-06-10"), wantStart: "2024-06-10", wantEnd: "2024-06-10"},
		{name: "synced today", last: ptr(d("2024-06-10")), today: d("2024-06-10"), wantStart: "2024-06-11", wantEnd: "2024-06-10", upToDate: true},
		{name: "lookback", last: ptr(d("2024-06-10")), today: d("2024-06-10"), lookback: 30, wantStart: "2024-05-12", wantEnd: "2024-06-10"},
		{name: "lookback clamped", last: ptr(d("2005-01-05")), today: d("2024-06-10"), lookback: 60, wantStart: "2005-01-01", wantEnd: "2024-06-10"},
		{name: "time of day ignored", last: ptr(time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)), today: time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC), wantStart: "2024-06-02", wantEnd: "2024-06-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, upToDate := ComputeWindow(tt.last, tt.today, history, tt.lookback)
			assert.Equal(t, tt.upToDate, upToDate)
			assert.Equal(t, tt.wantStart, w.Start.Format(time.DateOnly))
			assert.Equal(t, tt.wantEnd, w.End.Format(time.DateOnly))
		})
	}
}
