package feed

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/edwinhu/sec-sro-rss/internal/model"
	"github.com/edwinhu/sec-sro-rss/internal/util"
)

// Renderer produces the published artifacts: feed.xml (RSS 2.0), atom.xml
// (Atom 1.0) and filings.json. Now is injectable; it stamps the generation
// time and is the only nondeterminism in the output.
type Renderer struct {
	OutDir      string
	Title       string
	Description string
	ID          string
	Link        string
	Now         func() time.Time
}

// Documents holds all serialized artifacts before any of them touch disk.
type Documents struct {
	RSS  []byte
	Atom []byte
	JSON []byte
}

type jsonEnvelope struct {
	Updated time.Time      `json:"updated"`
	Count   int            `json:"count"`
	Filings []model.Filing `json:"filings"`
}

// Build serializes filings into all three documents in memory. Any failure
// here aborts the cycle before a single byte lands in OutDir.
func (r *Renderer) Build(filings []model.Filing) (Documents, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	ts := now().UTC()

	// Copy before sorting; an empty set still renders as a JSON array.
	sorted := make([]model.Filing, 0, len(filings))
	sorted = append(sorted, filings...)
	model.Sort(sorted)

	f := &feeds.Feed{
		Title:       r.Title,
		Link:        &feeds.Link{Href: r.Link},
		Description: r.Description,
		Id:          r.ID,
		Updated:     ts,
	}
	for _, fi := range sorted {
		f.Items = append(f.Items, &feeds.Item{
			Id:          fi.URL,
			Title:       fi.Title,
			Link:        &feeds.Link{Href: fi.URL},
			Description: itemDescription(fi),
			Created:     fi.Published,
			Updated:     fi.Published,
		})
	}

	rss, err := f.ToRss()
	if err != nil {
		return Documents{}, fmt.Errorf("feed: render rss: %w", err)
	}
	atom, err := f.ToAtom()
	if err != nil {
		return Documents{}, fmt.Errorf("feed: render atom: %w", err)
	}
	js, err := json.MarshalIndent(jsonEnvelope{
		Updated: ts,
		Count:   len(sorted),
		Filings: sorted,
	}, "", "  ")
	if err != nil {
		return Documents{}, fmt.Errorf("feed: render json: %w", err)
	}

	return Documents{RSS: []byte(rss), Atom: []byte(atom), JSON: append(js, '\n')}, nil
}

// Write publishes the documents into OutDir, each atomically.
func (r *Renderer) Write(docs Documents) error {
	outputs := []struct {
		name string
		data []byte
	}{
		{"feed.xml", docs.RSS},
		{"atom.xml", docs.Atom},
		{"filings.json", docs.JSON},
	}
	for _, out := range outputs {
		if err := util.WriteFileAtomic(filepath.Join(r.OutDir, out.name), out.data, 0644); err != nil {
			return fmt.Errorf("feed: publish %s: %w", out.name, err)
		}
	}
	return nil
}

// itemDescription composes the reader-facing entry body: source line, date
// line, then the "organization | file number | details" composite.
func itemDescription(f model.Filing) string {
	var parts []string
	if f.Source != "" {
		name := cases.Title(language.English).String(strings.ReplaceAll(f.Source, "-", " "))
		parts = append(parts, "Source: "+name)
	}
	if !f.Published.IsZero() {
		parts = append(parts, "Date: "+f.Published.Format("Jan 2, 2006"))
	}
	parts = append(parts, f.Organization+" | "+f.FileNumber+" | "+f.Summary)
	return strings.Join(parts, "\n")
}
