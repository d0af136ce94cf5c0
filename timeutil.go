package main

import (
	"context"
	"strconv"
	"time"

	"github.com/hako/durafmt"
)

// humanShortDuration produces a short, human-friendly duration string like
// "just now", "5s", "3m", "2h", "4d".
func humanShortDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Second {
		return "just now"
	}
	if d < time.Minute {
		return formatUnit(int(d.Seconds()), "s")
	}
	if d < time.Hour {
		return formatUnit(int(d.Minutes()), "m")
	}
	if d < 24*time.Hour {
		return formatUnit(int(d.Hours()), "h")
	}
	return formatUnit(int(d.Hours()/24), "d")
}

func formatUnit(v int, suffix string) string {
	if v <= 0 {
		v = 1
	}
	return strconv.Itoa(v) + suffix
}

// formatOutageDuration renders d as e.g. "2 minutes 5 seconds".
func formatOutageDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return durafmt.Parse(d.Round(time.Second)).LimitFirstN(2).String()
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
