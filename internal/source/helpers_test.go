package source

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain text", "plain text"},
		{"  spaced \n\t out  ", "spaced out"},
		{"<b>bold</b> move", "bold move"},
		{"Fee Schedule &amp; Pricing", "Fee Schedule & Pricing"},
		{"AT&T filing", "AT&T filing"},
		{`<a href="https://evil.test">click</a> here`, "click here"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cleanText(tc.in), "input %q", tc.in)
	}
}

func TestParseDateFlexible(t *testing.T) {
	want := time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"Dec 18, 2025", "December 18, 2025", "2025-12-18", "12/18/2025"} {
		got, err := parseDateFlexible(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	got, err := parseDateFlexible("2025-12-18T09:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, want.Add(9*time.Hour+30*time.Minute), got)

	for _, in := range []string{"", "TBD", "18 Dec 2025", "next Tuesday"} {
		_, err := parseDateFlexible(in)
		assert.Error(t, err, in)
	}
}

func TestBuildTitle(t *testing.T) {
	assert.Equal(t, "[34-103001] Amend the fee schedule",
		buildTitle("34-103001", "Amend the fee schedule"))

	long := strings.Repeat("a", 250)
	got := buildTitle("34-103002", long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "[34-103002] "+strings.Repeat("a", 200)+"...", got)

	// Rune-safe truncation.
	wide := strings.Repeat("é", 250)
	got = buildTitle("34-103003", wide)
	assert.Equal(t, "[34-103003] "+strings.Repeat("é", 200)+"...", got)
}

func TestAbsolutize(t *testing.T) {
	page, err := url.Parse("https://www.sec.gov/rules-regulations/self-regulatory-organization-rulemaking/finra")
	require.NoError(t, err)

	assert.Equal(t, "https://www.sec.gov/files/rules/sro/finra/2025/34-1.pdf",
		absolutize(page, "/files/rules/sro/finra/2025/34-1.pdf"))
	assert.Equal(t, "https://other.test/doc.pdf",
		absolutize(page, "https://other.test/doc.pdf"))
	assert.Equal(t, "https://www.sec.gov/files/a.pdf",
		absolutize(page, "  /files/a.pdf  "))
}

func TestPickStr(t *testing.T) {
	m := map[string]any{
		"empty":  "   ",
		"number": 42,
		"url":    "https://example.test/doc.pdf",
		"link":   "https://example.test/alt.pdf",
	}
	assert.Equal(t, "https://example.test/doc.pdf", pickStr(m, "missing", "empty", "number", "url", "link"))
	assert.Equal(t, "", pickStr(m, "missing", "empty", "number"))
}
