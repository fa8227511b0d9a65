package flow

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
)

// Title length bounds in runes
const (
	minTitleLen = 2
	maxTitleLen = 50
)

// Capacity bounds for meetup groups
const (
	MinCapacity = 2
	MaxCapacity = 50
)

// Itinerary day-count bounds
const (
	minTourDays = 1
	maxTourDays = 30
)

// DefaultReminderTime is used when input carries no time signal.
const DefaultReminderTime = "08:00"

// timeBuckets maps loose time-of-day words to clock times. Order matters:
// 中午 must be probed before any future shorter bucket that could shadow it.
var timeBuckets = []struct {
	word string
	hhmm string
}{
	{"早上", "08:00"},
	{"中午", "12:00"},
	{"晚上", "20:00"},
	{"睡前", "22:00"},
}

var (
	clockPattern      = regexp.MustCompile(`(\d{1,2})[:：點点](\d{1,2})?分?`)
	datePattern       = regexp.MustCompile(`(\d{1,2})/(\d{1,2})(?:\s+(\d{1,2}):(\d{2}))?`)
	itineraryPattern  = regexp.MustCompile(`([\p{Han}A-Za-z]+)(\d{1,2})\s*天`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	cancelCommands    = []string{"取消", "cancel"}
)

// Normalize trims, collapses runs of whitespace and lower-cases ASCII so
// keyword matching and flow input see one canonical form.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.ToLower(text)
}

// IsCancel reports whether the input is the universal escape command.
func IsCancel(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, c := range cancelCommands {
		if t == c {
			return true
		}
	}
	return false
}

// ParseTitle validates a free-text title.
func ParseTitle(text string) (string, error) {
	t := strings.TrimSpace(text)
	n := utf8.RuneCountInString(t)
	if n < minTitleLen {
		return "", apperrors.NewValidationError("title", "標題太短，請輸入至少 2 個字")
	}
	if n > maxTitleLen {
		return "", apperrors.NewValidationError("title", "標題太長，請輸入 50 個字以內")
	}
	return t, nil
}

// ParseCapacity validates a participant limit.
func ParseCapacity(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, apperrors.NewValidationError("capacity", "請輸入數字，例如 8")
	}
	if n < MinCapacity || n > MaxCapacity {
		return 0, apperrors.NewValidationError("capacity", "人數需介於 2 到 50 之間")
	}
	return n, nil
}

// ParseReminderTimes extracts medication times from loose text.
// Bucket words (早上, 中午, 晚上, 睡前) and explicit clock patterns (8點,
// 8點30分, 8:30) all contribute, appended in encounter order. Duplicates
// are kept: 「早上8點」 yields 08:00 twice. With no time signal at all the
// result is the single default time.
func ParseReminderTimes(text string) []string {
	type match struct {
		pos  int
		hhmm string
	}
	var matches []match

	for _, b := range timeBuckets {
		from := 0
		for {
			i := strings.Index(text[from:], b.word)
			if i < 0 {
				break
			}
			matches = append(matches, match{pos: from + i, hhmm: b.hhmm})
			from += i + len(b.word)
		}
	}

	for _, m := range clockPattern.FindAllStringSubmatchIndex(text, -1) {
		hour, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || hour > 23 {
			continue
		}
		minute := 0
		if m[4] >= 0 {
			minute, err = strconv.Atoi(text[m[4]:m[5]])
			if err != nil || minute > 59 {
				continue
			}
		}
		matches = append(matches, match{
			pos:  m[0],
			hhmm: twoDigit(hour) + ":" + twoDigit(minute),
		})
	}

	if len(matches) == 0 {
		return []string{DefaultReminderTime}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })
	times := make([]string, len(matches))
	for i, m := range matches {
		times[i] = m.hhmm
	}
	return times
}

// ParseAppointmentDate extracts an M/D date with optional HH:MM time.
// A date that already passed relative to now rolls over to next year;
// today's date stays in the current year.
func ParseAppointmentDate(text string, now time.Time) (time.Time, error) {
	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, apperrors.NewValidationError("date", "請輸入日期，例如 1/15 或 1/15 14:30")
	}

	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, apperrors.NewValidationError("date", "日期不正確，請再確認一次")
	}

	hour, minute := 9, 0
	if m[3] != "" {
		hour, _ = strconv.Atoi(m[3])
		minute, _ = strconv.Atoi(m[4])
		if hour > 23 || minute > 59 {
			return time.Time{}, apperrors.NewValidationError("date", "時間不正確，請再確認一次")
		}
	}

	candidate := time.Date(now.Year(), time.Month(month), day, hour, minute, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if candidate.Before(today) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return candidate, nil
}

// ParseItinerary extracts a destination and day count from phrases like
// 「台南3天」. Returns ok=false when the text carries no such phrase or the
// day count is out of range.
func ParseItinerary(text string) (destination string, days int, ok bool) {
	m := itineraryPattern.FindStringSubmatch(text)
	if m == nil {
		return "", 0, false
	}
	days, err := strconv.Atoi(m[2])
	if err != nil || days < minTourDays || days > maxTourDays {
		return "", 0, false
	}
	return m[1], days, true
}

func twoDigit(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
