package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// UnparseableReason is recorded when the model reply matches no accepted format.
const UnparseableReason = "Couldn't parse AI response"

const pdsDateLayout = "2 January 2006"

// Patterns are anchored at the start only; trailing text after the date is ignored.
var (
	threePartRe = regexp.MustCompile(`^(\d+)\s*\|\s*([^|]+)\s*\|\s*PDS date:\s*(\d{1,2} [A-Za-z]+ \d{4})`)
	fullScoreRe = regexp.MustCompile(`^100\s*\|\s*PDS date:\s*(\d{1,2} [A-Za-z]+ \d{4})`)
	twoPartRe   = regexp.MustCompile(`^(\d+)\s*\|\s*(.*)`)
)

// Result is the structured verdict for one document.
type Result struct {
	Score   int
	Reason  string
	PDSDate string
}

// ParseResponse turns a model reply into a Result. Formats are tried in order:
//
//	<score> | <reason> | PDS date: D Month YYYY
//	100 | PDS date: D Month YYYY
//	<score> | <reason>
//
// Anything else yields (0, UnparseableReason, "").
func ParseResponse(content string) Result {
	content = strings.TrimSpace(content)

	if m := threePartRe.FindStringSubmatch(content); m != nil {
		if score, ok := atoi(m[1]); ok {
			return Result{
				Score:   score,
				Reason:  strings.TrimSpace(m[2]),
				PDSDate: FormatPDSDate(strings.TrimSpace(m[3])),
			}
		}
	}

	if m := fullScoreRe.FindStringSubmatch(content); m != nil {
		return Result{Score: 100, PDSDate: FormatPDSDate(m[1])}
	}

	if m := twoPartRe.FindStringSubmatch(content); m != nil {
		if score, ok := atoi(m[1]); ok {
			return Result{Score: score, Reason: strings.TrimSpace(m[2])}
		}
	}

	return Result{Score: 0, Reason: UnparseableReason}
}

// FormatPDSDate normalizes "D Month YYYY" (e.g. "05 January 2024" becomes
// "5 January 2024"). Inputs that do not parse are returned unchanged.
func FormatPDSDate(s string) string {
	t, err := time.Parse(pdsDateLayout, s)
	if err != nil {
		return s
	}
	return t.Format(pdsDateLayout)
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
