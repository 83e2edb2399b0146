package attendance

import (
	"log/slog"
	"time"
)

// fallbackOffset is UTC+7, used when the configured zone cannot be loaded.
const fallbackOffset = 7 * 60 * 60

// Schedule decides which local date it is and whether marking is open.
type Schedule struct {
	loc     *time.Location
	weekday time.Weekday
}

// NewSchedule loads the named zone. If the zone database is unavailable the
// schedule falls back to a fixed UTC+7 zone instead of failing startup.
func NewSchedule(zone string, weekday time.Weekday) *Schedule {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		slog.Warn("attendance time zone unavailable, using fixed UTC+7",
			slog.String("zone", zone),
			slog.Any("error", err),
		)
		loc = time.FixedZone("UTC+7", fallbackOffset)
	}
	return &Schedule{loc: loc, weekday: weekday}
}

// Weekday returns the day marking is open.
func (s *Schedule) Weekday() time.Weekday {
	return s.weekday
}

// Day returns the local date for now and whether marking is open then.
func (s *Schedule) Day(now time.Time) (date string, open bool) {
	local := now.In(s.loc)
	return local.Format(dateLayout), local.Weekday() == s.weekday
}
