package core

import "time"

// clampDay is the day used when the source day does not exist in the target
// month. It is deliberately 28 rather than the last day of the month.
const clampDay = 28

// NextExpected returns the date the next occurrence of a charge last seen on
// last is expected, given its frequency.
//
//	weekly    -> +7 days
//	biweekly  -> +14 days
//	monthly   -> +1 month, same day; day 28 when the target month is shorter
//	quarterly -> +3 months, same clamp rule
//	yearly    -> same month and day next year; Feb 29 becomes Feb 28
//
// An unrecognized frequency is an InvalidRequest error.
func NextExpected(last Date, f Frequency) (Date, error) {
	switch f {
	case Weekly:
		return Date{Time: last.AddDate(0, 0, 7)}, nil
	case Biweekly:
		return Date{Time: last.AddDate(0, 0, 14)}, nil
	case Monthly:
		return addMonthsClamped(last, 1), nil
	case Quarterly:
		return addMonthsClamped(last, 3), nil
	case Yearly:
		return addMonthsClamped(last, 12), nil
	default:
		return Date{}, InvalidRequest("frequency", string(f), "unrecognized frequency")
	}
}

// addMonthsClamped avoids time.AddDate, which normalizes Jan 31 + 1 month
// into March.
func addMonthsClamped(d Date, months int) Date {
	year, month, day := d.Date()
	total := int(month) - 1 + months
	year += total / 12
	month = time.Month(total%12 + 1)
	if day > daysIn(year, month) {
		day = clampDay
	}
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
