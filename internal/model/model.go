package model

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"time"
)

// Filing is the normalized representation of one SRO rulemaking notice.
type Filing struct {
	ID           string    `json:"id"`                     // stable de-dup key, NewID(URL)
	Title        string    `json:"title"`                  // "[release] details…" as published
	Organization string    `json:"organization,omitempty"` // issuing SRO, e.g. "NASDAQ"
	FileNumber   string    `json:"file_number,omitempty"`  // e.g. "SR-NASDAQ-2025-080"
	Published    time.Time `json:"published"`              // SEC issue date, UTC
	URL          string    `json:"url"`                    // canonical document link
	Summary      string    `json:"summary,omitempty"`      // details text, plain
	Source       string    `json:"source,omitempty"`       // configured source name
}

// NewID derives the identity of a filing from its document URL. Two scrapes
// of the same document always map to the same record.
func NewID(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:12]
}

// Sort orders filings newest first. Equal timestamps fall back to ID so the
// rendered output is stable across runs.
func Sort(filings []Filing) {
	sort.Slice(filings, func(i, j int) bool {
		if !filings[i].Published.Equal(filings[j].Published) {
			return filings[i].Published.After(filings[j].Published)
		}
		return filings[i].ID < filings[j].ID
	})
}
