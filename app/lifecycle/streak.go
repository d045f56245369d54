package lifecycle

import (
	"database/sql"
	"time"
)

// NextStreak applies the login-cadence rule on UTC calendar days: the day after
// the last login extends the streak, a gap resets it to 1, and a second login on
// the same day leaves it alone. The first ever login starts at 1.
func NextStreak(current int, lastLogin sql.NullTime, now time.Time) int {
	if !lastLogin.Valid {
		return 1
	}

	days := DaysBetween(lastLogin.Time, now)
	switch {
	case days == 1:
		return current + 1
	case days > 1:
		return 1
	}
	return current
}

// DaysBetween counts whole calendar days from a to b, both truncated to UTC midnight.
func DaysBetween(a, b time.Time) int {
	return int(midnight(b).Sub(midnight(a)) / (24 * time.Hour))
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
