package source

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.StrictPolicy()

// cleanText strips any markup out of scraped text and collapses whitespace.
// Nothing that reaches the feeds may carry HTML.
func cleanText(s string) string {
	s = html.UnescapeString(sanitizer.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

var dateLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02",
	"01/02/2006",
	time.RFC3339,
}

// parseDateFlexible parses the date formats seen on SEC pages and APIs.
func parseDateFlexible(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date: %q", s)
}

// pickStr returns the first non-empty string value among keys.
func pickStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				if s2 := strings.TrimSpace(s); s2 != "" {
					return s2
				}
			}
		}
	}
	return ""
}

// absolutize resolves href against the page it was scraped from.
func absolutize(page *url.URL, href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return page.ResolveReference(u).String()
}

// titleDetailLimit caps how much of the details text the title carries.
const titleDetailLimit = 200

// buildTitle composes the "[release] details" headline used everywhere the
// feed is displayed.
func buildTitle(release, details string) string {
	runes := []rune(details)
	if len(runes) > titleDetailLimit {
		return "[" + release + "] " + string(runes[:titleDetailLimit]) + "..."
	}
	return "[" + release + "] " + details
}
