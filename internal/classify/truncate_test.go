package classify

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateForLog(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
	}{
		{name: "short reply kept", in: "  95 | ok | 1 July 2024 ", want: "95 | ok | 1 July 2024"},
		{name: "ascii cut at limit", in: strings.Repeat("a", 250), want: strings.Repeat("a", 200) + "..."},
		{name: "multibyte cut on rune boundary", in: strings.Repeat("é", 150), want: strings.Repeat("é", 150)},
		{name: "multibyte over limit", in: strings.Repeat("日", 201), want: strings.Repeat("日", 200) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateForLog(tt.in)
			if got != tt.want {
				t.Fatalf("truncateForLog()=%q want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("result is not valid UTF-8: %q", got)
			}
		})
	}
}
