package availability

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atendeai/booking-engine/internal/directory"
)

func saturdayProfessional() directory.Professional {
	return directory.Professional{
		ID:        uuid.New(),
		Name:      "Ana",
		Active:    true,
		WorkDays:  []time.Weekday{time.Tuesday, time.Thursday, time.Saturday},
		WorkStart: "09:00",
		WorkEnd:   "18:00",
	}
}

func TestIntervalOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"disjoint", Interval{540, 570}, Interval{600, 630}, false},
		{"adjacent half-open", Interval{540, 570}, Interval{570, 600}, false},
		{"partial", Interval{540, 600}, Interval{570, 630}, true},
		{"contained", Interval{540, 660}, Interval{570, 600}, true},
		{"identical", Interval{540, 570}, Interval{540, 570}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.b); got != tc.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if got := tc.b.Overlaps(tc.a); got != tc.want {
				t.Errorf("Overlaps is not symmetric for %v and %v", tc.a, tc.b)
			}
		})
	}
}

func TestComputeEmptyDayHasNoBusyIntervals(t *testing.T) {
	prof := saturdayProfessional()
	// Saturday 2026-02-07
	from := time.Date(2026, 2, 7, 8, 0, 0, 0, time.UTC)

	days := Compute(prof, nil, from, 1)
	if len(days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(days))
	}
	day := days[0]
	if !day.Working {
		t.Fatal("expected a working Saturday")
	}
	if len(day.Busy) != 0 {
		t.Fatalf("expected no busy intervals, got %v", day.Busy)
	}
}

func TestComputeNonWorkingDay(t *testing.T) {
	prof := saturdayProfessional()
	// Sunday 2026-02-08
	from := time.Date(2026, 2, 8, 8, 0, 0, 0, time.UTC)

	days := Compute(prof, nil, from, 1)
	if days[0].Working {
		t.Fatal("Sunday should not be a working day")
	}
}

func TestComputeDefaultsDurationTo30Minutes(t *testing.T) {
	prof := saturdayProfessional()
	from := time.Date(2026, 2, 7, 8, 0, 0, 0, time.UTC)
	appts := []directory.Appointment{{
		ProfessionalID: prof.ID,
		Date:           "2026-02-07",
		StartTime:      "09:00",
		Status:         directory.StatusPending,
	}}

	days := Compute(prof, appts, from, 1)
	if len(days[0].Busy) != 1 {
		t.Fatalf("expected 1 busy interval, got %d", len(days[0].Busy))
	}
	got := days[0].Busy[0]
	want := Interval{Start: 540, End: 570}
	if got != want {
		t.Errorf("busy interval = %v, want %v", got, want)
	}
}

func TestComputeSkipsCancelledAndOtherProfessionals(t *testing.T) {
	prof := saturdayProfessional()
	from := time.Date(2026, 2, 7, 8, 0, 0, 0, time.UTC)
	appts := []directory.Appointment{
		{
			ProfessionalID:  prof.ID,
			Date:            "2026-02-07",
			StartTime:       "10:00",
			DurationMinutes: 60,
			Status:          directory.StatusCancelled,
		},
		{
			ProfessionalID:  uuid.New(),
			Date:            "2026-02-07",
			StartTime:       "11:00",
			DurationMinutes: 60,
			Status:          directory.StatusPending,
		},
	}

	days := Compute(prof, appts, from, 1)
	if len(days[0].Busy) != 0 {
		t.Fatalf("expected no busy intervals, got %v", days[0].Busy)
	}
}

func TestFormatForPromptMentionsOnlyRealAppointments(t *testing.T) {
	prof := saturdayProfessional()
	from := time.Date(2026, 2, 7, 8, 0, 0, 0, time.UTC)

	text := FormatForPrompt(prof.Name, Compute(prof, nil, from, 2))
	if !strings.Contains(text, "livre de 09:00 às 18:00") {
		t.Errorf("free Saturday missing from prompt text:\n%s", text)
	}
	if !strings.Contains(text, "não atende") {
		t.Errorf("non-working Sunday missing from prompt text:\n%s", text)
	}
	if strings.Contains(text, "ocupado") {
		t.Errorf("prompt invented busy slots:\n%s", text)
	}
}

func TestParseClock(t *testing.T) {
	if got, err := ParseClock("09:30"); err != nil || got != 570 {
		t.Errorf("ParseClock(09:30) = %d, %v", got, err)
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Error("expected out-of-range error for 25:00")
	}
	if _, err := ParseClock("abc"); err == nil {
		t.Error("expected parse error for abc")
	}
}

func TestFormatClock(t *testing.T) {
	if got := FormatClock(570); got != "09:30" {
		t.Errorf("FormatClock(570) = %q", got)
	}
}
