package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"textcal/internal/model"
	"textcal/internal/nlp"
)

var (
	dayAfterTomorrowRe = regexp.MustCompile(`^(?:the\s+)?day\s+after\s+tomorrow$`)
	adjacentRe         = regexp.MustCompile(`^(?:the\s+)?(day|week)\s+(after|before)(?:\s+that)?$`)
	followingRe        = regexp.MustCompile(`^the\s+(?:following|next)\s+(day|week)$`)
	laterRe            = regexp.MustCompile(`^(\S+)\s+(days?|weeks?)\s+(?:later|afterwards|after(?:\s+that)?)$`)
	inCountRe          = regexp.MustCompile(`^in\s+(\S+)\s+(days?|weeks?|months?)$`)
	spanWordRe         = regexp.MustCompile(`^(next|this|coming)\s+(week|month|year)$`)
	weekdayRe          = regexp.MustCompile(`^(?:(next|this|coming)\s+)?([a-z]+)$`)
	monthFirstRe       = regexp.MustCompile(`^([a-z]+)\.?\s+(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?$`)
	dayFirstRe         = regexp.MustCompile(`^(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?([a-z]+)\.?(?:,?\s+(\d{4}))?$`)
	isoDateRe          = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	slashDateRe        = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?$`)
	bareDayRe          = regexp.MustCompile(`^(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)$`)

	clockPart     = `(\d{1,2})(?:[:.](\d{2}))?`
	meridiemPart  = `(a\.m\.?|p\.m\.?|am|pm)`
	zonePart      = `(?:\s*(utc|gmt|[+-]\d{2}:?\d{2}|est|edt|cst|cdt|mst|mdt|pst|pdt|cet|cest|bst))?`
	rangeSepPart  = `\s*(?:-|–|to|until|till)\s*`
	meridiemRange = regexp.MustCompile(`^` + clockPart + `\s*` + meridiemPart + `?` + rangeSepPart + clockPart + `\s*` + meridiemPart + zonePart + `$`)
	clockRange    = regexp.MustCompile(`^(\d{1,2}):(\d{2})` + rangeSepPart + `(\d{1,2}):(\d{2})` + zonePart + `$`)
	meridiemTime  = regexp.MustCompile(`^` + clockPart + `\s*` + meridiemPart + zonePart + `$`)
	clockTime     = regexp.MustCompile(`^(\d{1,2})[:.](\d{2})` + zonePart + `$`)
	oclockTime    = regexp.MustCompile(`^(\d{1,2})\s*o'?clock$`)
	bareHour      = regexp.MustCompile(`^(\d{1,2})$`)
	partOfDay     = regexp.MustCompile(`^(?:(?:in\s+the|this)\s+)?(morning|afternoon|evening)$`)

	forDuration  = regexp.MustCompile(`^for\s+(\S+)\s*(hours?|hrs?|minutes?|mins?)(?:\s+and\s+(?:(a\s+half)|(\d+)\s*(?:minutes?|mins?)))?$`)
	endKeywordRe = regexp.MustCompile(`(?:^|\s)(until|till|til|to|through|-|–)\s*$`)
)

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sep": time.September,
	"sept": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

var countWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

// partOfDayHours are the defaults used for fuzzy phrases.
var partOfDayHours = map[string]int{
	"morning":   9,
	"afternoon": 14,
	"evening":   18,
	"tonight":   20,
}

// Detect classifies the temporal entities of a clause into expressions, in
// clause order. Entities that cannot be classified are dropped.
func Detect(c model.Clause) []model.Expression {
	out := make([]model.Expression, 0, len(c.Entities))
	for _, ent := range c.Entities {
		var (
			expr model.Expression
			ok   bool
		)
		start := ent.Start
		text := strings.TrimSpace(ent.Text)
		switch ent.Label {
		case nlp.LabelDate:
			expr, ok = classifyDate(text)
		case nlp.LabelTime:
			expr, ok = classifyTime(text)
			if kw, word, found := endKeyword(c.Text, ent.Start); ok && found && !expr.HasEnd {
				// A dash or "to" only ends an event that already has a start.
				if closingWords[word] || hasStartTime(out) {
					expr.IsEnd = true
					start = kw
				}
			}
		case nlp.LabelDuration:
			expr, ok = classifyDuration(text)
		}
		if !ok {
			continue
		}
		expr.Text = ent.Text
		expr.Start = start
		expr.End = ent.End
		out = append(out, expr)
	}
	return out
}

// closingWords mark an end time on their own.
var closingWords = map[string]bool{"until": true, "till": true, "til": true, "through": true}

// endKeyword finds "until", "till", "to" or a dash right before a time and
// returns where the keyword starts along with the keyword.
func endKeyword(clause string, start int) (int, string, bool) {
	if start <= 0 || start > len(clause) {
		return 0, "", false
	}
	loc := endKeywordRe.FindStringSubmatchIndex(clause[:start])
	if loc == nil {
		return 0, "", false
	}
	return loc[2], clause[loc[2]:loc[3]], true
}

func hasStartTime(exprs []model.Expression) bool {
	for _, e := range exprs {
		if e.Kind == model.TimeOfDay && !e.IsEnd {
			return true
		}
	}
	return false
}

func classifyDate(text string) (model.Expression, bool) {
	switch text {
	case "today":
		return model.Expression{Kind: model.RelativeDate}, true
	case "tonight":
		return model.Expression{Kind: model.RelativeDate, DefaultHour: partOfDayHours["tonight"]}, true
	case "tomorrow", "tmrw":
		return model.Expression{Kind: model.RelativeDate, OffsetDays: 1}, true
	case "yesterday":
		return model.Expression{Kind: model.RelativeDate, OffsetDays: -1}, true
	}

	if dayAfterTomorrowRe.MatchString(text) {
		return model.Expression{Kind: model.RelativeDate, OffsetDays: 2}, true
	}
	if m := adjacentRe.FindStringSubmatch(text); m != nil {
		days := unitDays(m[1])
		if m[2] == "before" {
			days = -days
		}
		return model.Expression{Kind: model.Implicit, OffsetDays: days}, true
	}
	if m := followingRe.FindStringSubmatch(text); m != nil {
		return model.Expression{Kind: model.Implicit, OffsetDays: unitDays(m[1])}, true
	}
	if m := laterRe.FindStringSubmatch(text); m != nil {
		n, ok := parseCount(m[1])
		if !ok {
			return model.Expression{}, false
		}
		return model.Expression{Kind: model.Implicit, OffsetDays: n * unitDays(m[2])}, true
	}
	if m := inCountRe.FindStringSubmatch(text); m != nil {
		n, ok := parseCount(m[1])
		if !ok {
			return model.Expression{}, false
		}
		if strings.HasPrefix(m[2], "month") {
			return model.Expression{Kind: model.RelativeDate, OffsetMonths: n}, true
		}
		return model.Expression{Kind: model.RelativeDate, OffsetDays: n * unitDays(m[2])}, true
	}
	if m := spanWordRe.FindStringSubmatch(text); m != nil {
		expr := model.Expression{Kind: model.RelativeDate}
		if m[1] == "this" {
			return expr, true
		}
		switch m[2] {
		case "week":
			expr.OffsetDays = 7
		case "month":
			expr.OffsetMonths = 1
		case "year":
			expr.OffsetMonths = 12
		}
		return expr, true
	}
	if m := weekdayRe.FindStringSubmatch(text); m != nil {
		if wd, ok := weekdayNames[m[2]]; ok {
			return model.Expression{Kind: model.NamedWeekday, Weekday: wd, Next: m[1] == "next"}, true
		}
	}
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		return model.Expression{Kind: model.AbsoluteDate, Year: atoi(m[1]), Month: time.Month(atoi(m[2])), Day: atoi(m[3])}, true
	}
	if m := slashDateRe.FindStringSubmatch(text); m != nil {
		expr := model.Expression{Kind: model.AbsoluteDate, Month: time.Month(atoi(m[1])), Day: atoi(m[2])}
		if m[3] != "" {
			expr.Year = atoi(m[3])
			if expr.Year < 100 {
				expr.Year += 2000
			}
		}
		return expr, expr.Month >= time.January && expr.Month <= time.December
	}
	if m := monthFirstRe.FindStringSubmatch(text); m != nil {
		if month, ok := lookupMonth(m[1]); ok {
			return model.Expression{Kind: model.AbsoluteDate, Month: month, Day: atoi(m[2]), Year: atoi(m[3])}, true
		}
	}
	if m := dayFirstRe.FindStringSubmatch(text); m != nil {
		if month, ok := lookupMonth(m[2]); ok {
			return model.Expression{Kind: model.AbsoluteDate, Month: month, Day: atoi(m[1]), Year: atoi(m[3])}, true
		}
	}
	if m := bareDayRe.FindStringSubmatch(text); m != nil {
		// Month zero marks a bare day of month.
		return model.Expression{Kind: model.AbsoluteDate, Day: atoi(m[1])}, true
	}
	return model.Expression{}, false
}

func classifyTime(text string) (model.Expression, bool) {
	text = strings.TrimPrefix(text, "at ")
	text = strings.TrimPrefix(text, "from ")
	text = strings.TrimSpace(text)

	switch text {
	case "noon", "midday":
		return model.Expression{Kind: model.TimeOfDay, Hour: 12}, true
	case "midnight":
		return model.Expression{Kind: model.TimeOfDay, Hour: 0}, true
	}

	if m := meridiemRange.FindStringSubmatch(text); m != nil {
		endHour, endMin := to24(atoi(m[4]), atoi(m[5]), m[6])
		startMer := m[3]
		if startMer == "" {
			startMer = m[6]
		}
		hour, minute := to24(atoi(m[1]), atoi(m[2]), startMer)
		if m[3] == "" && hour*60+minute > endHour*60+endMin {
			// "11-1 pm" starts in the morning.
			hour, minute = to24(atoi(m[1]), atoi(m[2]), "am")
		}
		if !validClock(hour, minute) || !validClock(endHour, endMin) {
			return model.Expression{}, false
		}
		return model.Expression{
			Kind: model.TimeOfDay, Hour: hour, Minute: minute,
			HasEnd: true, EndHour: endHour, EndMin: endMin, Location: parseZone(m[7]),
		}, true
	}
	if m := clockRange.FindStringSubmatch(text); m != nil {
		e := model.Expression{
			Kind: model.TimeOfDay, Hour: atoi(m[1]), Minute: atoi(m[2]),
			HasEnd: true, EndHour: atoi(m[3]), EndMin: atoi(m[4]), Location: parseZone(m[5]),
		}
		return e, validClock(e.Hour, e.Minute) && validClock(e.EndHour, e.EndMin)
	}
	if m := meridiemTime.FindStringSubmatch(text); m != nil {
		hour, minute := to24(atoi(m[1]), atoi(m[2]), m[3])
		return model.Expression{Kind: model.TimeOfDay, Hour: hour, Minute: minute, Location: parseZone(m[4])}, validClock(hour, minute)
	}
	if m := clockTime.FindStringSubmatch(text); m != nil {
		e := model.Expression{Kind: model.TimeOfDay, Hour: atoi(m[1]), Minute: atoi(m[2]), Location: parseZone(m[3])}
		return e, validClock(e.Hour, e.Minute)
	}
	if m := oclockTime.FindStringSubmatch(text); m != nil {
		hour := guessHour(atoi(m[1]))
		return model.Expression{Kind: model.TimeOfDay, Hour: hour}, validClock(hour, 0)
	}
	if m := bareHour.FindStringSubmatch(text); m != nil {
		hour := guessHour(atoi(m[1]))
		return model.Expression{Kind: model.TimeOfDay, Hour: hour}, validClock(hour, 0)
	}
	if m := partOfDay.FindStringSubmatch(text); m != nil {
		return model.Expression{Kind: model.TimeOfDay, Hour: partOfDayHours[m[1]], Fuzzy: true}, true
	}
	return model.Expression{}, false
}

func classifyDuration(text string) (model.Expression, bool) {
	var length time.Duration
	switch text {
	case "for half an hour":
		length = 30 * time.Minute
	case "for an hour", "for a hour":
		length = time.Hour
	case "for an hour and a half", "for a hour and a half":
		length = 90 * time.Minute
	default:
		m := forDuration.FindStringSubmatch(text)
		if m == nil {
			return model.Expression{}, false
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			c, ok := countWords[m[1]]
			if !ok {
				return model.Expression{}, false
			}
			n = float64(c)
		}
		unit := time.Minute
		if strings.HasPrefix(m[2], "h") {
			unit = time.Hour
		}
		length = time.Duration(n * float64(unit))
		if m[3] != "" {
			length += unit / 2
		}
		if m[4] != "" {
			length += time.Duration(atoi(m[4])) * time.Minute
		}
	}
	if length <= 0 {
		return model.Expression{}, false
	}
	return model.Expression{Kind: model.Duration, Length: length}, true
}

// guessHour reads a bare "at 3" as an afternoon hour.
func guessHour(h int) int {
	if h >= 1 && h <= 7 {
		return h + 12
	}
	return h
}

func to24(hour, minute int, meridiem string) (int, int) {
	pm := strings.HasPrefix(meridiem, "p")
	switch {
	case hour == 12 && !pm:
		hour = 0
	case hour < 12 && pm:
		hour += 12
	}
	return hour, minute
}

func validClock(hour, minute int) bool {
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

func unitDays(unit string) int {
	if strings.HasPrefix(unit, "week") {
		return 7
	}
	return 1
}

func parseCount(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	n, ok := countWords[s]
	return n, ok
}

func lookupMonth(name string) (time.Month, bool) {
	m, ok := monthNames[name]
	return m, ok
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

var fixedZones = map[string]int{
	"est": -5, "edt": -4, "cst": -6, "cdt": -5, "mst": -7, "mdt": -6,
	"pst": -8, "pdt": -7, "cet": 1, "cest": 2, "bst": 1,
}

// parseZone maps a zone suffix to a location. Empty input yields nil.
func parseZone(z string) *time.Location {
	switch z {
	case "":
		return nil
	case "utc", "gmt":
		return time.UTC
	}
	if h, ok := fixedZones[z]; ok {
		return time.FixedZone(strings.ToUpper(z), h*3600)
	}
	sign := 1
	if z[0] == '-' {
		sign = -1
	}
	digits := strings.ReplaceAll(z[1:], ":", "")
	if len(digits) != 4 {
		return nil
	}
	offset := sign * (atoi(digits[:2])*3600 + atoi(digits[2:])*60)
	return time.FixedZone("UTC"+z[:3]+":"+digits[2:], offset)
}
