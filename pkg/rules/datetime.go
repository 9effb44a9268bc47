package rules

import (
	"fmt"
	"strings"
	"time"
)

// Pattern letters commonly used in date formats, mapped to Go layout
// fragments by run length.
var layoutLetters = map[byte]map[int]string{
	'y': {1: "2006", 2: "06", 4: "2006"},
	'M': {1: "1", 2: "01", 3: "Jan", 4: "January"},
	'd': {1: "2", 2: "02"},
	'H': {1: "15", 2: "15"},
	'h': {1: "3", 2: "03"},
	'm': {1: "4", 2: "04"},
	's': {1: "5", 2: "05"},
	'S': {1: "0", 2: "00", 3: "000", 6: "000000", 9: "000000000"},
	'a': {1: "PM"},
	'E': {1: "Mon", 2: "Mon", 3: "Mon", 4: "Monday"},
	'X': {1: "Z07", 2: "Z0700", 3: "Z07:00"},
	'Z': {1: "-0700", 2: "-0700", 3: "-0700"},
	'z': {1: "MST", 2: "MST", 3: "MST"},
}

// layoutFor converts a date format into a Go time layout. An empty format
// selects the ISO 8601 form for the rule kind.
func layoutFor(kind Kind, format string) (string, error) {
	if format == "" {
		switch kind {
		case KindDate:
			return time.DateOnly, nil
		case KindTime:
			return time.TimeOnly, nil
		default:
			return time.RFC3339, nil
		}
	}
	return convertFormat(format)
}

func convertFormat(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); {
		c := format[i]
		switch {
		case c == '\'':
			end := strings.IndexByte(format[i+1:], '\'')
			if end < 0 {
				return "", fmt.Errorf("unterminated quote in format %q", format)
			}
			if end == 0 {
				b.WriteByte('\'')
			} else {
				b.WriteString(format[i+1 : i+1+end])
			}
			i += end + 2
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			run := 1
			for i+run < len(format) && format[i+run] == c {
				run++
			}
			frags, ok := layoutLetters[c]
			if !ok {
				return "", fmt.Errorf("unsupported pattern letter %q in format %q", c, format)
			}
			frag, ok := frags[run]
			if !ok {
				// Longer runs fall back to the widest known form.
				best := 0
				for n := range frags {
					if n <= run && n > best {
						best = n
					}
				}
				if best == 0 {
					return "", fmt.Errorf("unsupported pattern %q in format %q", strings.Repeat(string(c), run), format)
				}
				frag = frags[best]
			}
			b.WriteString(frag)
			i += run
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func parseTimeValue(layout, s string) error {
	_, err := time.Parse(layout, s)
	return err
}
