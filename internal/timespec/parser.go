package timespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse parses a time specification into a Unix timestamp (milliseconds).
// Supports three formats:
//   - Go duration format: "1h", "30m", "1h30m", "2h45m30s"
//   - Days and weeks: "2d", "1w"
//   - RFC3339 timestamps: "2025-10-29T13:00:00Z"
//
// Relative specifications are subtracted from the current time.
// For example, "2d" means "two days ago".
func Parse(spec string) (int64, error) {
	return ParseAt(spec, time.Now())
}

// ParseAt is Parse relative to now.
func ParseAt(spec string, now time.Time) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	// Try parsing as RFC3339 first
	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := ParseDuration(spec); err == nil {
		return now.Add(-d).UnixMilli(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or '2d', or RFC3339 like '2025-10-29T13:00:00Z')", spec)
}

// ParseDuration accepts Go durations plus a single "Nd" (days) or "Nw"
// (weeks) term.
func ParseDuration(spec string) (time.Duration, error) {
	if d, err := time.ParseDuration(spec); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration: %s", spec)
		}
		return d, nil
	}

	unit := map[byte]time.Duration{'d': 24 * time.Hour, 'w': 7 * 24 * time.Hour}
	if len(spec) < 2 {
		return 0, fmt.Errorf("invalid duration: %s", spec)
	}
	size, ok := unit[spec[len(spec)-1]]
	if !ok {
		return 0, fmt.Errorf("invalid duration: %s", spec)
	}
	n, err := strconv.Atoi(strings.TrimSpace(spec[:len(spec)-1]))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %s", spec)
	}
	return time.Duration(n) * size, nil
}

// ParseRange parses both --since and --until flags into a time range.
// Returns (sinceTimestampMs, untilTimestampMs, error).
// Zero values indicate "no bound" for that end of the range.
//
// Validates that since < until if both are specified.
func ParseRange(since, until string) (int64, int64, error) {
	now := time.Now()
	var sinceMS, untilMS int64
	var err error

	if since != "" {
		sinceMS, err = ParseAt(since, now)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		untilMS, err = ParseAt(until, now)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	// Validate range
	if sinceMS > 0 && untilMS > 0 && sinceMS >= untilMS {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}

	return sinceMS, untilMS, nil
}
