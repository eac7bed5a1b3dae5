package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/edwinhu/sec-sro-rss/internal/config"
	"github.com/edwinhu/sec-sro-rss/internal/model"
)

// Engine decides which filings never enter the feed. Title rules run against
// the title alone; keyword rules run against the full searchable text
// (title, organization, file number, summary).
type Engine struct {
	title    []*regexp.Regexp
	keywords []*regexp.Regexp
}

// Match records one dropped filing and the pattern that dropped it.
type Match struct {
	Filing  model.Filing
	Pattern string
}

func New(cfg config.FilterConfig) (*Engine, error) {
	e := &Engine{}
	for _, p := range cfg.TitlePatterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("filter: title pattern %q: %w", p, err)
		}
		e.title = append(e.title, re)
	}
	for _, p := range cfg.KeywordPatterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("filter: keyword pattern %q: %w", p, err)
		}
		e.keywords = append(e.keywords, re)
	}
	return e, nil
}

// Excluded reports whether f must be dropped and which pattern matched.
func (e *Engine) Excluded(f model.Filing) (string, bool) {
	for _, re := range e.title {
		if re.MatchString(f.Title) {
			return re.String(), true
		}
	}
	text := searchText(f)
	for _, re := range e.keywords {
		if re.MatchString(text) {
			return re.String(), true
		}
	}
	return "", false
}

// Apply partitions filings into kept and dropped. Order is preserved.
func (e *Engine) Apply(filings []model.Filing) ([]model.Filing, []Match) {
	kept := make([]model.Filing, 0, len(filings))
	var dropped []Match
	for _, f := range filings {
		if pattern, ok := e.Excluded(f); ok {
			dropped = append(dropped, Match{Filing: f, Pattern: pattern})
			continue
		}
		kept = append(kept, f)
	}
	return kept, dropped
}

func searchText(f model.Filing) string {
	return strings.Join([]string{f.Title, f.Organization, f.FileNumber, f.Summary}, " ")
}
