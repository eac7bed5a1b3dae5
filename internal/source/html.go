package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/edwinhu/sec-sro-rss/internal/config"
	"github.com/edwinhu/sec-sro-rss/internal/fetch"
	"github.com/edwinhu/sec-sro-rss/internal/model"
)

// rateLimitMarker appears in the response body when the SEC throttles a
// client; the status code stays 200.
const rateLimitMarker = "Request Rate Threshold Exceeded"

// rateLimitWait is how long throttled clients are expected to back off.
var rateLimitWait = 10 * time.Second

// htmlSource scrapes one SEC SRO rulemaking listing page. The listing is a
// table with five columns: release number (linking to the document), SEC
// issue date, file number, SRO organization, and details text.
type htmlSource struct {
	cfg    config.SourceConfig
	client *fetch.Client
	log    *zap.Logger
	page   *url.URL
}

func newHTMLSource(cfg config.SourceConfig, client *fetch.Client, log *zap.Logger) (*htmlSource, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("source %s: parse url: %w", cfg.Name, err)
	}
	return &htmlSource{
		cfg:    cfg,
		client: client,
		log:    log.With(zap.String("source", cfg.Name)),
		page:   u,
	}, nil
}

func (s *htmlSource) Name() string { return s.cfg.Name }

// Fetch walks the paginated listing until a page comes back empty or the
// page cap is reached. Only a failure on the first page fails the source;
// trouble further in keeps whatever was already parsed.
func (s *htmlSource) Fetch(ctx context.Context) (Batch, error) {
	var batch Batch
	for page := 0; page < s.cfg.MaxPages; page++ {
		body, err := s.fetchPage(ctx, s.pageURL(page))
		if err != nil {
			if page == 0 {
				return Batch{}, err
			}
			s.log.Warn("stopping pagination", zap.Int("page", page), zap.Error(err))
			break
		}
		filings, skipped, err := s.parsePage(body)
		if err != nil {
			if page == 0 {
				return Batch{}, err
			}
			s.log.Warn("stopping pagination", zap.Int("page", page), zap.Error(err))
			break
		}
		batch.Skipped += skipped
		if len(filings) == 0 {
			s.log.Debug("empty page, stopping pagination", zap.Int("page", page))
			break
		}
		batch.Filings = append(batch.Filings, filings...)
		s.log.Info("parsed listing page", zap.Int("page", page), zap.Int("filings", len(filings)), zap.Int("skipped", skipped))
	}
	return batch, nil
}

func (s *htmlSource) pageURL(page int) string {
	if page == 0 {
		return s.page.String()
	}
	u := *s.page
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// fetchPage retrieves one listing page, waiting out the SEC rate limit once
// before giving up on it.
func (s *htmlSource) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	body, err := s.client.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if !bytes.Contains(body, []byte(rateLimitMarker)) {
		return body, nil
	}

	s.log.Warn("rate limited, backing off", zap.String("url", pageURL), zap.Duration("wait", rateLimitWait))
	select {
	case <-time.After(rateLimitWait):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	body, err = s.client.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if bytes.Contains(body, []byte(rateLimitMarker)) {
		return nil, fmt.Errorf("source %s: still rate limited: %s", s.cfg.Name, pageURL)
	}
	return body, nil
}

func (s *htmlSource) parsePage(body []byte) ([]model.Filing, int, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("source %s: parse html: %w", s.cfg.Name, err)
	}
	var filings []model.Filing
	skipped := 0
	for _, row := range tableRows(doc) {
		f, ok := s.parseRow(row)
		if !ok {
			skipped++
			continue
		}
		filings = append(filings, f)
	}
	return filings, skipped, nil
}

// parseRow maps one table row to a filing. Malformed rows are skipped, never
// fatal; the SEC occasionally interleaves header and note rows.
func (s *htmlSource) parseRow(row *html.Node) (model.Filing, bool) {
	cells := childCells(row)
	if len(cells) < 5 {
		return model.Filing{}, false
	}

	link := firstAnchor(cells[0])
	if link == nil {
		return model.Filing{}, false
	}
	href := attrVal(link, "href")
	if href == "" {
		return model.Filing{}, false
	}
	docURL := absolutize(s.page, href)
	if docURL == "" {
		return model.Filing{}, false
	}
	release := cleanText(strings.ReplaceAll(nodeText(link), "External.", ""))

	dateStr := cleanText(nodeText(cells[1]))
	published, err := parseDateFlexible(dateStr)
	if err != nil {
		s.log.Warn("skipping row", zap.String("release", release), zap.Error(err))
		return model.Filing{}, false
	}

	details := cleanText(detailsText(cells[4]))

	return model.Filing{
		ID:           model.NewID(docURL),
		Title:        buildTitle(release, details),
		Organization: cleanText(nodeText(cells[3])),
		FileNumber:   cleanText(nodeText(cells[2])),
		Published:    published,
		URL:          docURL,
		Summary:      details,
		Source:       s.cfg.Name,
	}, true
}

// detailsText reads the direct text of the details cell. Everything from
// the first <strong> on is boilerplate ("Comments Due: ..."), and nested
// elements such as the "Submit a Comment" link carry no details text.
func detailsText(cell *html.Node) string {
	var b strings.Builder
	for c := cell.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
		case html.ElementNode:
			if c.DataAtom == atom.Strong {
				return b.String()
			}
		}
	}
	return b.String()
}

// tableRows collects every <tr> inside a <tbody>, across all tables.
func tableRows(doc *html.Node) []*html.Node {
	var rows []*html.Node
	var walk func(n *html.Node, inTbody bool)
	walk = func(n *html.Node, inTbody bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Tbody:
				inTbody = true
			case atom.Tr:
				if inTbody {
					rows = append(rows, n)
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inTbody)
		}
	}
	walk(doc, false)
	return rows
}

func childCells(row *html.Node) []*html.Node {
	var cells []*html.Node
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Td {
			cells = append(cells, c)
		}
	}
	return cells
}

func firstAnchor(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.A && attrVal(n, "href") != "" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if a := firstAnchor(c); a != nil {
			return a
		}
	}
	return nil
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeText concatenates all text in a subtree.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
