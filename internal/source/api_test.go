package source

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edwinhu/sec-sro-rss/internal/config"
)

func newTestAPISource(t *testing.T, baseURL string) Source {
	t.Helper()
	src, err := New(config.SourceConfig{
		Name:     "notices",
		Type:     "api",
		URL:      baseURL + "/api/filings",
		Query:    "proposed rule change",
		PageSize: 2,
		MaxPages: 3,
	}, fastClient(), zap.NewNop())
	require.NoError(t, err)
	return src
}

func TestAPISourceFetch(t *testing.T) {
	pageOne := `{"count": 2, "results": [
	  {"release_number": "34-103101", "url": "https://example.test/a.pdf", "date": "Dec 1, 2025",
	   "organization": "NASDAQ", "details": "Proposed rule change one", "file_number": "SR-NASDAQ-2025-001"},
	  {"releaseNo": "34-103102", "link": "https://example.test/b.pdf", "issue_date": "2025-12-02",
	   "sro": "FINRA", "summary": "Proposed rule change two", "fileNo": "SR-FINRA-2025-002"}
	]}`

	srv, requests := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.Write([]byte(pageOne))
			return
		}
		w.Write([]byte(`{"count": 0, "results": []}`))
	})

	src := newTestAPISource(t, srv.URL)
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Filings, 2)
	assert.Zero(t, batch.Skipped)

	assert.Equal(t, "[34-103101] Proposed rule change one", batch.Filings[0].Title)
	assert.Equal(t, "https://example.test/a.pdf", batch.Filings[0].URL)
	assert.Equal(t, "NASDAQ", batch.Filings[0].Organization)
	assert.Equal(t, "SR-NASDAQ-2025-001", batch.Filings[0].FileNumber)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), batch.Filings[0].Published)
	assert.Equal(t, "notices", batch.Filings[0].Source)

	// Alternate key names map to the same fields.
	assert.Equal(t, "[34-103102] Proposed rule change two", batch.Filings[1].Title)
	assert.Equal(t, "FINRA", batch.Filings[1].Organization)
	assert.Equal(t, "SR-FINRA-2025-002", batch.Filings[1].FileNumber)

	got := requests()
	require.Len(t, got, 2, "a full first page asks for a second")
	assert.Contains(t, got[0], "q=proposed+rule+change")
	assert.Contains(t, got[0], "page=1")
	assert.Contains(t, got[0], "page_size=2")
	assert.Contains(t, got[1], "page=2")
}

func TestAPISourceShortPageStopsPagination(t *testing.T) {
	srv, requests := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count": 1, "results": [
		  {"id": 103, "pdf_url": "https://example.test/c.pdf", "published": "2025-12-03T00:00:00Z",
		   "org": "Cboe", "description": "Third notice"}
		]}`))
	})

	src := newTestAPISource(t, srv.URL)
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Filings, 1)

	// Numeric ids are still usable as release numbers.
	assert.Equal(t, "[103] Third notice", batch.Filings[0].Title)
	assert.Equal(t, "Cboe", batch.Filings[0].Organization)
	assert.Len(t, requests(), 1, "a short page ends pagination")
}

func TestAPISourceSkipsUnusableRecords(t *testing.T) {
	srv, _ := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			w.Write([]byte(`{"results": []}`))
			return
		}
		w.Write([]byte(`{"results": [
		  {"release_number": "34-1", "date": "Dec 1, 2025", "details": "no url"},
		  {"release_number": "34-2", "url": "https://example.test/x.pdf", "date": "whenever", "details": "bad date"},
		  {"release_number": "34-3", "url": "https://example.test/y.pdf", "date": "Dec 3, 2025", "details": "keeper"}
		]}`))
	})

	src := newTestAPISource(t, srv.URL)
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Filings, 1)
	assert.Equal(t, 2, batch.Skipped)
	assert.Equal(t, "[34-3] keeper", batch.Filings[0].Title)
}

func TestAPISourceUnrecognizedShape(t *testing.T) {
	srv, _ := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"weird": "shape"}`))
	})

	src := newTestAPISource(t, srv.URL)
	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized response shape")
}

func TestAPISourceFirstPageError(t *testing.T) {
	srv, _ := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})

	src := newTestAPISource(t, srv.URL)
	_, err := src.Fetch(context.Background())
	assert.Error(t, err)
}

func TestDecodeEnvelope(t *testing.T) {
	cases := []struct {
		name string
		body string
		rows int
		err  bool
	}{
		{"results wrapper", `{"count": 1, "results": [{"a": 1}]}`, 1, false},
		{"items wrapper", `{"items": [{}]}`, 1, false},
		{"filings wrapper", `{"filings": [{}, {}]}`, 2, false},
		{"bare array", `[{}, {}, {}]`, 3, false},
		{"empty envelope", `{"count": 0, "results": []}`, 0, false},
		{"null body", `null`, 0, false},
		{"unknown object", `{"weird": true}`, 0, true},
		{"not json", `<html>`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := decodeEnvelope([]byte(tc.body))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, rows, tc.rows)
		})
	}
}
