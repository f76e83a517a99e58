package conversation

import (
	"fmt"
	"strings"
	"time"
)

// Portuguese day words mapped to weekdays. Accent-less spellings are
// included because chat users rarely type accents.
var weekdayWords = map[string]time.Weekday{
	"domingo": time.Sunday,
	"segunda": time.Monday,
	"terça":   time.Tuesday,
	"terca":   time.Tuesday,
	"quarta":  time.Wednesday,
	"quinta":  time.Thursday,
	"sexta":   time.Friday,
	"sábado":  time.Saturday,
	"sabado":  time.Saturday,
}

var canonicalWeekdays = []struct {
	Label string
	Day   time.Weekday
}{
	{"domingo", time.Sunday},
	{"segunda-feira", time.Monday},
	{"terça-feira", time.Tuesday},
	{"quarta-feira", time.Wednesday},
	{"quinta-feira", time.Thursday},
	{"sexta-feira", time.Friday},
	{"sábado", time.Saturday},
}

// NextOccurrence returns the next date falling on the given weekday,
// 0–6 days ahead of now (today when the weekday matches).
func NextOccurrence(now time.Time, day time.Weekday) time.Time {
	offset := (int(day) - int(now.Weekday()) + 7) % 7
	return now.AddDate(0, 0, offset)
}

// ResolveDayWord resolves "hoje", "amanhã" or a Portuguese weekday name
// to a concrete date. The word must already be lower-cased.
func ResolveDayWord(word string, now time.Time) (time.Time, bool) {
	word = strings.TrimSpace(strings.TrimSuffix(word, "-feira"))
	switch word {
	case "hoje":
		return now, true
	case "amanhã", "amanha":
		return now.AddDate(0, 0, 1), true
	}
	if day, ok := weekdayWords[word]; ok {
		return NextOccurrence(now, day), true
	}
	return time.Time{}, false
}

// FindDayWord scans free text for the first resolvable day word and
// returns its concrete date.
func FindDayWord(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)
	for _, token := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?' || r == '\n'
	}) {
		if date, ok := ResolveDayWord(token, now); ok {
			return date, true
		}
	}
	return time.Time{}, false
}

// WeekdayTable renders the next occurrence of every weekday name, used to
// ground relative-date language in prompts so date math is never left to
// the model.
func WeekdayTable(now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hoje é %s, %s.\n", weekdayLabel(now.Weekday()), now.Format("02/01/2006"))
	b.WriteString("Próximas datas por dia da semana (formato ISO AAAA-MM-DD):\n")
	for _, wd := range canonicalWeekdays {
		next := NextOccurrence(now, wd.Day)
		fmt.Fprintf(&b, "- %s: %s\n", wd.Label, next.Format("2006-01-02"))
	}
	return b.String()
}

func weekdayLabel(day time.Weekday) string {
	for _, wd := range canonicalWeekdays {
		if wd.Day == day {
			return wd.Label
		}
	}
	return ""
}
