// Package paypal implements the pieces of PayPal's IPN protocol this service
// needs: the custom payment_date format, payload field access, and the
// notify-validate round trip.
package paypal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValidationError reports a malformed payment_date. It is distinct from
// every other error kind so handlers can map it to a rejected request.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

var months = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// PayPal only ever reports US-Pacific time; the abbreviation carries the
// standard/daylight offset, so a fixed zone per abbreviation is exact.
var zones = map[string]*time.Location{
	"PST": time.FixedZone("PST", -8*60*60),
	"PDT": time.FixedZone("PDT", -7*60*60),
}

// ParseDate converts PayPal's payment_date format, "HH:MM:SS Mon DD, YYYY
// ZONE", into a UTC instant. Any other zone than PST/PDT fails validation.
func ParseDate(value string) (time.Time, error) {
	fields := strings.Fields(strings.TrimSpace(value))
	if len(fields) != 5 {
		return time.Time{}, &ValidationError{Msg: fmt.Sprintf("invalid date format %q", value)}
	}

	timePart := fields[0]
	monthPart := strings.TrimSuffix(fields[1], ".")
	dayPart := strings.TrimSuffix(fields[2], ",")
	yearPart := fields[3]
	zonePart := fields[4]

	month, ok := months[monthPart]
	if !ok {
		return time.Time{}, &ValidationError{Msg: fmt.Sprintf("invalid month %q in date %q", monthPart, value)}
	}

	day, err := strconv.Atoi(dayPart)
	if err != nil {
		return time.Time{}, &ValidationError{Msg: fmt.Sprintf("invalid day in date %q", value)}
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return time.Time{}, &ValidationError{Msg: fmt.Sprintf("invalid year in date %q", value)}
	}

	hms := strings.Split(timePart, ":")
	if len(hms) != 3 {
		return time.Time{}, &ValidationError{Msg: fmt.Sprintf("invalid time in date %q", value)}
	}
	hour, err := strconv.Atoi(hms[0])
	if err != nil {
		return time.Time{}, &ValidationError{Msg: fmt.Sprintf("invalid hour in date %q", value)}
	}
	minute, err := strconv.Atoi(hms[1])
	if err != nil {
		return time.Time{}, &ValidationError{Msg: fmt.Sprintf("invalid minute in date %q", value)}
	}
	second, err := strconv.Atoi(hms[2])
	if err != nil {
		return time.Time{}, &ValidationError{Msg: fmt.Sprintf("invalid second in date %q", value)}
	}

	if month < time.January || month > time.December ||
		day < 1 || day > daysIn(year, month) ||
		hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return time.Time{}, &ValidationError{Msg: fmt.Sprintf("date out of range %q", value)}
	}

	loc, ok := zones[zonePart]
	if !ok {
		return time.Time{}, &ValidationError{Msg: "bad timezone: " + zonePart}
	}

	return time.Date(year, month, day, hour, minute, second, 0, loc).UTC(), nil
}

func daysIn(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
