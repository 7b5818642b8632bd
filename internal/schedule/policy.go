package schedule

import "time"

// BlockTag identifies a bookable window within a day. The tag is the
// uniqueness key for a slot, the label is only for display.
type BlockTag string

const (
	BlockAM BlockTag = "AM"
	BlockPM BlockTag = "PM"
)

// Block is a bookable window on a concrete date. Blocks are computed
// fresh from the weekly business-hours rule and never persisted.
type Block struct {
	Date   time.Time
	Tag    BlockTag
	Label  string
	Opens  time.Time
	Closes time.Time
}

// Fixed business hours: weekdays have a morning and an afternoon block,
// Saturday mornings only, Sundays closed.
const (
	morningOpenHour    = 9
	morningCloseHour   = 13
	afternoonOpenHour  = 16
	afternoonCloseHour = 20
	saturdayOpenHour   = 10
	saturdayCloseHour  = 13
)

// BlocksFor returns the bookable blocks for the given date in
// chronological order. A closed day yields an empty slice, not an
// error. The function does not validate the date against the booking
// horizon; that belongs to admission.
func BlocksFor(date time.Time) []Block {
	day := Midnight(date)

	switch day.Weekday() {
	case time.Sunday:
		return nil
	case time.Saturday:
		return []Block{
			block(day, BlockAM, "Morning", saturdayOpenHour, saturdayCloseHour),
		}
	default:
		return []Block{
			block(day, BlockAM, "Morning", morningOpenHour, morningCloseHour),
			block(day, BlockPM, "Afternoon", afternoonOpenHour, afternoonCloseHour),
		}
	}
}

// FindBlock resolves a (date, tag) pair against the policy. The second
// return value is false when the tag does not exist on that date.
func FindBlock(date time.Time, tag BlockTag) (Block, bool) {
	for _, b := range BlocksFor(date) {
		if b.Tag == tag {
			return b, true
		}
	}
	return Block{}, false
}

// WithinHorizon reports whether a visit date is bookable from the
// caller's point in time: not in the past and at most horizonMonths
// ahead. Same-day booking is allowed.
func WithinHorizon(date, now time.Time, horizonMonths int) bool {
	day := Midnight(date)
	today := Midnight(now)

	if day.Before(today) {
		return false
	}
	return !day.After(today.AddDate(0, horizonMonths, 0))
}

// Midnight truncates a timestamp to the start of its calendar day,
// keeping the location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func block(day time.Time, tag BlockTag, label string, openHour, closeHour int) Block {
	return Block{
		Date:   day,
		Tag:    tag,
		Label:  label,
		Opens:  day.Add(time.Duration(openHour) * time.Hour),
		Closes: day.Add(time.Duration(closeHour) * time.Hour),
	}
}
