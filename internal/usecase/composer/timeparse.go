package composer

import (
	"strings"
	"time"
)

var dayWords = []struct {
	word  string
	shift int
}{
	{"сегодня", 0},
	{"завтра", 1},
	{"today", 0},
	{"tomorrow", 1},
}

// ParseScheduleTime разбирает время отправки. Голое «HH:MM» и формы со
// словами «сегодня»/«завтра» трактуются в часовом поясе loc, полная форма
// «HH:MM DD.MM.YYYY» — в UTC. Результат всегда в UTC.
func ParseScheduleTime(input string, now time.Time, loc *time.Location) (time.Time, error) {
	text := strings.ToLower(strings.TrimSpace(input))
	if text == "" {
		return time.Time{}, ErrBadTime
	}

	shift := -1
	for _, day := range dayWords {
		if text == day.word {
			return time.Time{}, ErrBadTime
		}
		if strings.HasPrefix(text, day.word+" ") {
			shift = day.shift
			text = strings.TrimSpace(strings.TrimPrefix(text, day.word))
			break
		}
	}

	if shift < 0 {
		if due, err := time.Parse("15:04 02.01.2006", text); err == nil {
			return due, nil
		}
		shift = 0
	}

	clock, err := time.Parse("15:04", text)
	if err != nil {
		return time.Time{}, ErrBadTime
	}
	local := now.In(loc)
	due := time.Date(local.Year(), local.Month(), local.Day()+shift, clock.Hour(), clock.Minute(), 0, 0, loc)
	return due.UTC(), nil
}
