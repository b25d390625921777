package timeline

import (
	"regexp"
	"strings"
	"time"
)

const (
	// UnknownDateKey groups results whose date could not be parsed.
	UnknownDateKey = "unknown"
	// UnknownDateLabel is shown in place of a date for the unknown group.
	UnknownDateLabel = "unknown date"

	canonicalLayout = "2006-01-02T15:04:05"
	dayLayout       = "2006-01-02"
	displayLayout   = "2006.01.02"
)

// Date is either a known calendar day or Unknown.
type Date struct {
	day   string // YYYY-MM-DD, empty when unknown
	known bool
}

// Unknown is the date of results without a parseable timestamp.
var Unknown = Date{}

// KnownDate wraps a YYYY-MM-DD day.
func KnownDate(day string) Date {
	return Date{day: day, known: true}
}

// IsKnown reports whether the date was parsed.
func (d Date) IsKnown() bool { return d.known }

// Key returns the grouping key: the ISO day or UnknownDateKey.
func (d Date) Key() string {
	if !d.known {
		return UnknownDateKey
	}
	return d.day
}

// Display renders the day as YYYY.MM.DD, or UnknownDateLabel.
func (d Date) Display() string {
	if !d.known {
		return UnknownDateLabel
	}
	return displayDay(d.day)
}

// CompareDesc orders dates most recent first with Unknown always last.
// Zero-padded ISO days sort lexicographically in chronological order.
func CompareDesc(a, b Date) int {
	switch {
	case !a.known && !b.known:
		return 0
	case !a.known:
		return 1
	case !b.known:
		return -1
	}
	return strings.Compare(b.day, a.day)
}

func displayDay(day string) string {
	t, err := time.Parse(dayLayout, day)
	if err != nil {
		return strings.ReplaceAll(day, "-", ".")
	}
	return t.Format(displayLayout)
}

// Stamp is the outcome of normalizing one raw date string.
type Stamp struct {
	Date     Date
	Datetime string // canonical YYYY-MM-DDTHH:MM:SS, empty when unknown
}

// DisplayTime returns HH:MM, or "" when the stamp is unknown.
func (s Stamp) DisplayTime() string {
	if len(s.Datetime) < len(canonicalLayout) {
		return ""
	}
	return s.Datetime[11:16]
}

// Time returns the parsed instant in UTC.
func (s Stamp) Time() (time.Time, bool) {
	if s.Datetime == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(canonicalLayout, s.Datetime)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func stampOf(t time.Time) Stamp {
	return Stamp{Date: KnownDate(t.Format(dayLayout)), Datetime: t.Format(canonicalLayout)}
}

// Parser turns a raw date string into a stamp, or reports that it cannot.
type Parser interface {
	Parse(raw string) (Stamp, bool)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(raw string) (Stamp, bool)

// Parse calls f.
func (f ParserFunc) Parse(raw string) (Stamp, bool) { return f(raw) }

// PrefixLayout matches prefix at the start of the input and parses the match
// with layout. Trailing text after the prefix is ignored.
func PrefixLayout(prefix, layout string) Parser {
	re := regexp.MustCompile(`^(?:` + prefix + `)`)
	return ParserFunc(func(raw string) (Stamp, bool) {
		m := re.FindString(raw)
		if m == "" {
			return Stamp{}, false
		}
		t, err := time.Parse(layout, m)
		if err != nil {
			return Stamp{}, false
		}
		return stampOf(t), true
	})
}

// Embedded searches anywhere in the input for pattern and takes the matched
// text as is. Group 1 is the YYYY-MM-DD day, the optional group 2 the
// HH:MM:SS time, which defaults to midnight. The match is not checked
// against the calendar.
func Embedded(pattern string) Parser {
	re := regexp.MustCompile(pattern)
	return ParserFunc(func(raw string) (Stamp, bool) {
		m := re.FindStringSubmatch(raw)
		if m == nil {
			return Stamp{}, false
		}
		clock := "00:00:00"
		if len(m) > 2 && m[2] != "" {
			clock = m[2]
		}
		return Stamp{Date: KnownDate(m[1]), Datetime: m[1] + "T" + clock}, true
	})
}

const (
	ymdDash  = `\d{4}-\d{1,2}-\d{1,2}`
	ymdSlash = `\d{4}/\d{1,2}/\d{1,2}`
	ymdDot   = `\d{4}\.\d{1,2}\.\d{1,2}`
	hms      = `\d{1,2}:\d{2}:\d{2}`
	frac     = `\.\d{1,9}`
)

// DefaultParsers is the ordered strategy list used by NewNormalizer.
// The first parser that succeeds wins.
func DefaultParsers() []Parser {
	return []Parser{
		PrefixLayout(ymdDash+`T`+hms, "2006-1-2T15:04:05"),
		PrefixLayout(ymdDash+`T`+hms+frac, "2006-1-2T15:04:05.999999999"),
		PrefixLayout(ymdDash+` `+hms, "2006-1-2 15:04:05"),
		PrefixLayout(ymdDash+` `+hms+frac, "2006-1-2 15:04:05.999999999"),
		PrefixLayout(ymdDash, "2006-1-2"),
		PrefixLayout(ymdSlash+` `+hms, "2006/1/2 15:04:05"),
		PrefixLayout(ymdSlash, "2006/1/2"),
		PrefixLayout(ymdDot+` `+hms, "2006.1.2 15:04:05"),
		PrefixLayout(ymdDot, "2006.1.2"),
		Embedded(`(\d{4}-\d{2}-\d{2})\s+(\d{2}:\d{2}:\d{2})`),
		Embedded(`(\d{4}-\d{2}-\d{2})`),
	}
}

// RFC1123Parsers parses HTTP-style dates such as
// "Sat, 08 Nov 2025 14:30:00 GMT". They are not part of DefaultParsers and
// are passed to NewNormalizer by callers that want them.
func RFC1123Parsers() []Parser {
	return []Parser{rfc1123(time.RFC1123Z), rfc1123(time.RFC1123)}
}

// rfc1123 keeps the wall-clock reading of the source, like the ISO layouts.
func rfc1123(layout string) Parser {
	return ParserFunc(func(raw string) (Stamp, bool) {
		t, err := time.Parse(layout, raw)
		if err != nil {
			return Stamp{}, false
		}
		return stampOf(time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)), true
	})
}

// Normalizer converts freeform date strings into canonical stamps.
type Normalizer struct {
	parsers []Parser
}

// NewNormalizer builds a normalizer from DefaultParsers followed by extra.
func NewNormalizer(extra ...Parser) *Normalizer {
	return &Normalizer{parsers: append(DefaultParsers(), extra...)}
}

// Normalize never fails: unparseable input yields an Unknown stamp.
func (n *Normalizer) Normalize(raw string) Stamp {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Stamp{Date: Unknown}
	}
	for _, p := range n.parsers {
		if st, ok := p.Parse(raw); ok {
			return st
		}
	}
	return Stamp{Date: Unknown}
}

// NormalizeResult picks published_date, falling back to timestamp only when
// published_date is empty. A blank but non-empty published_date is unknown.
func (n *Normalizer) NormalizeResult(publishedDate, timestamp string) Stamp {
	src := publishedDate
	if src == "" {
		src = timestamp
	}
	return n.Normalize(src)
}
