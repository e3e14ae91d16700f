package extract

import (
	"regexp"
	"strings"
	"time"
)

// Outlets whose names show up as prefixes on aggregated headlines and as
// source markers inside article bodies.
var knownOutlets = []string{
	"연합뉴스",
	"뉴시스",
	"뉴스1",
	"한국경제",
	"매일경제",
	"조선일보",
	"중앙일보",
	"동아일보",
	"한겨레",
	"경향신문",
	"KBS",
	"MBC",
	"SBS",
	"YTN",
	"JTBC",
}

const dateTokenLayout = "2006-01-02"

var (
	whitespaceRuns = regexp.MustCompile(`\s+`)
	dateToken      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// CollapseWhitespace trims the string and folds runs of whitespace into
// single spaces.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRuns.ReplaceAllString(s, " "))
}

// ParseDateToken extracts a literal YYYY-MM-DD token from s. The fallback is
// returned when no token is present or it does not parse.
func ParseDateToken(s string, fallback time.Time) time.Time {
	token := dateToken.FindString(s)
	if token == "" {
		return fallback
	}
	t, err := time.Parse(dateTokenLayout, token)
	if err != nil {
		return fallback
	}
	return t
}

// NormalizeTitle cleans an aggregated headline: strips a known outlet prefix
// (optionally followed by a date token), collapses whitespace, and collapses
// an exact doubled title ("X X" -> "X").
func NormalizeTitle(raw string) string {
	title := CollapseWhitespace(raw)

	for _, outlet := range knownOutlets {
		for _, prefix := range []string{outlet + "/", outlet + " "} {
			if strings.HasPrefix(title, prefix) {
				title = CollapseWhitespace(strings.TrimPrefix(title, prefix))
				break
			}
		}
	}
	if token := dateToken.FindString(title); token != "" && strings.HasPrefix(title, token) {
		title = CollapseWhitespace(strings.TrimPrefix(title, token))
	}

	return collapseDoubledTitle(title)
}

// collapseDoubledTitle reduces "제목 제목" to "제목". Aggregator markup often
// repeats the headline inside one anchor.
func collapseDoubledTitle(title string) string {
	if len(title) < 2 {
		return title
	}
	if len(title)%2 == 1 {
		half := title[:len(title)/2]
		if title == half+" "+half {
			return half
		}
	}
	return title
}
