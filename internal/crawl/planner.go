package crawl

import "time"

// PlanWindows divides totalDays of history ending at anchorEnd
// (exclusive) into non-overlapping windows of at most windowDays each,
// most recent first. The oldest window absorbs the remainder when
// windowDays does not divide totalDays.
func PlanWindows(totalDays, windowDays int, anchorEnd time.Time) ([]Window, error) {
	if totalDays <= 0 {
		return nil, &ConfigError{Field: "total_days", Msg: "must be >= 1"}
	}
	if windowDays <= 0 {
		return nil, &ConfigError{Field: "window_days", Msg: "must be >= 1"}
	}

	anchorEnd = Midnight(anchorEnd)
	windows := make([]Window, 0, (totalDays+windowDays-1)/windowDays)
	covered := 0
	end := anchorEnd
	for covered < totalDays {
		span := windowDays
		if covered+span > totalDays {
			span = totalDays - covered
		}
		start := end.AddDate(0, 0, -span)
		windows = append(windows, Window{Start: start, End: end})
		end = start
		covered += span
	}
	return windows, nil
}
