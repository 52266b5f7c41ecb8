// Package timeutil implements the timesheet cell time arithmetic: wall-clock
// differences with midnight rollover, and the distinct "finalized total" text
// format that keeps a computed duration from being re-parsed as a clock-in.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// clockRE matches a raw clock-in value, e.g. "9:05" or "18:30".
	clockRE = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
	// finalRE matches a finalized total, e.g. "H:08:30". The literal "H:"
	// prefix is the format tag that distinguishes a total from a clock-in.
	finalRE = regexp.MustCompile(`^H:(\d{1,2}):([0-5]\d)$`)
)

// IsClock reports whether s looks like a raw HH:MM clock-in value.
func IsClock(s string) bool {
	return clockRE.MatchString(strings.TrimSpace(s))
}

// CellState is the text-derived state of a ledger cell.
type CellState int

const (
	CellEmpty CellState = iota
	CellStarted
	CellFinalized
	// CellOther covers hand-typed content that is neither a clock-in nor a
	// finalized total; transitions treat it like a closed cell.
	CellOther
)

// Cell is a ledger cell's content classified once at read time.
type Cell struct {
	Raw     string
	State   CellState
	ClockIn string // set when State == CellStarted
	Minutes int    // set when State == CellFinalized
}

// Classify pattern-matches a raw cell value into its tagged state.
func Classify(raw string) Cell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Cell{Raw: raw, State: CellEmpty}
	}
	if m := finalRE.FindStringSubmatch(trimmed); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		return Cell{Raw: raw, State: CellFinalized, Minutes: h*60 + mm}
	}
	if clockRE.MatchString(trimmed) {
		return Cell{Raw: raw, State: CellStarted, ClockIn: trimmed}
	}
	return Cell{Raw: raw, State: CellOther}
}

func parseClock(s string) (h, m int, err error) {
	s = strings.TrimSpace(s)
	if !clockRE.MatchString(s) {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	parts := strings.SplitN(s, ":", 2)
	h, _ = strconv.Atoi(parts[0])
	m, _ = strconv.Atoi(parts[1])
	if h > 23 || m > 59 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return h, m, nil
}

// MinutesBetween returns the whole minutes between two HH:MM wall-clock
// values on the same calendar day. An empty end uses now's time-of-day
// combined with day's date, so a request handled just past midnight still
// measures against the shift's own day. End earlier than start means the
// interval crossed midnight and gains 24 hours. Never rounds.
func MinutesBetween(start, end string, day, now time.Time) (int, error) {
	sh, sm, err := parseClock(start)
	if err != nil {
		return 0, err
	}

	var eh, em int
	if strings.TrimSpace(end) == "" {
		eh, em = now.Hour(), now.Minute()
	} else {
		eh, em, err = parseClock(end)
		if err != nil {
			return 0, err
		}
	}

	startDT := time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, day.Location())
	endDT := time.Date(day.Year(), day.Month(), day.Day(), eh, em, 0, 0, day.Location())
	if endDT.Before(startDT) {
		endDT = endDT.Add(24 * time.Hour)
	}
	return int(endDT.Sub(startDT).Minutes()), nil
}

// FormatFinal renders a total as "H:HH:MM". Negative input clamps to zero.
func FormatFinal(totalMinutes int) string {
	if totalMinutes < 0 {
		totalMinutes = 0
	}
	return fmt.Sprintf("H:%02d:%02d", totalMinutes/60, totalMinutes%60)
}

// FormatClock renders minutes as a plain "HH:MM" duration for captions.
func FormatClock(totalMinutes int) string {
	if totalMinutes < 0 {
		totalMinutes = 0
	}
	return fmt.Sprintf("%02d:%02d", totalMinutes/60, totalMinutes%60)
}
