// Package availability computes free/busy windows for professionals from
// their working schedule and existing appointments. All functions are pure.
package availability

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atendeai/booking-engine/internal/directory"
)

// Interval is a half-open [Start, End) span in minutes since midnight.
type Interval struct {
	Start int
	End   int
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && i.End > other.Start
}

// DayAvailability describes one civil day for one professional.
type DayAvailability struct {
	Date      time.Time
	Working   bool
	WorkStart string
	WorkEnd   string
	Busy      []Interval
}

// Compute returns the availability for the next `days` days starting at
// `from`. Only non-cancelled appointments of the professional on the day
// produce busy intervals; appointment duration is authoritative for the
// interval end, defaulting to 30 minutes when unset.
func Compute(prof directory.Professional, appts []directory.Appointment, from time.Time, days int) []DayAvailability {
	byDate := make(map[string][]Interval)
	for _, appt := range appts {
		if appt.ProfessionalID != prof.ID || appt.Status == directory.StatusCancelled {
			continue
		}
		start, err := ParseClock(appt.StartTime)
		if err != nil {
			continue
		}
		dur := appt.DurationMinutes
		if dur <= 0 {
			dur = directory.DefaultDurationMinutes
		}
		byDate[appt.Date] = append(byDate[appt.Date], Interval{Start: start, End: start + dur})
	}

	out := make([]DayAvailability, 0, days)
	for i := 0; i < days; i++ {
		date := from.AddDate(0, 0, i)
		day := DayAvailability{Date: date}
		if !prof.WorksOn(date.Weekday()) {
			out = append(out, day)
			continue
		}
		day.Working = true
		day.WorkStart = prof.WorkStart
		day.WorkEnd = prof.WorkEnd
		busy := byDate[date.Format("2006-01-02")]
		sort.Slice(busy, func(a, b int) bool { return busy[a].Start < busy[b].Start })
		day.Busy = busy
		out = append(out, day)
	}
	return out
}

// FormatForPrompt renders the free/busy picture as plain Portuguese text for
// the dialogue system prompt.
func FormatForPrompt(profName string, days []DayAvailability) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agenda de %s:\n", profName)
	for _, day := range days {
		label := fmt.Sprintf("%s (%s)", day.Date.Format("02/01/2006"), weekdayPT(day.Date.Weekday()))
		if !day.Working {
			fmt.Fprintf(&b, "- %s: não atende\n", label)
			continue
		}
		if len(day.Busy) == 0 {
			fmt.Fprintf(&b, "- %s: livre de %s às %s\n", label, day.WorkStart, day.WorkEnd)
			continue
		}
		occupied := make([]string, 0, len(day.Busy))
		for _, iv := range day.Busy {
			occupied = append(occupied, fmt.Sprintf("%s-%s", FormatClock(iv.Start), FormatClock(iv.End)))
		}
		fmt.Fprintf(&b, "- %s: atende de %s às %s, ocupado em %s\n",
			label, day.WorkStart, day.WorkEnd, strings.Join(occupied, ", "))
	}
	return b.String()
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(clock string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(clock), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("availability: invalid clock %q: %w", clock, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("availability: clock %q out of range", clock)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func weekdayPT(d time.Weekday) string {
	switch d {
	case time.Sunday:
		return "domingo"
	case time.Monday:
		return "segunda-feira"
	case time.Tuesday:
		return "terça-feira"
	case time.Wednesday:
		return "quarta-feira"
	case time.Thursday:
		return "quinta-feira"
	case time.Friday:
		return "sexta-feira"
	default:
		return "sábado"
	}
}
