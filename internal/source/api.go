package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/edwinhu/sec-sro-rss/internal/config"
	"github.com/edwinhu/sec-sro-rss/internal/fetch"
	"github.com/edwinhu/sec-sro-rss/internal/model"
)

// apiSource queries a JSON notices API by title substring. Deployments
// disagree on envelope and field names, so decoding is tolerant: a
// count/results wrapper or a bare array, with per-field key fallbacks.
type apiSource struct {
	cfg    config.SourceConfig
	client *fetch.Client
	log    *zap.Logger
}

func newAPISource(cfg config.SourceConfig, client *fetch.Client, log *zap.Logger) (*apiSource, error) {
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("source %s: parse url: %w", cfg.Name, err)
	}
	return &apiSource{cfg: cfg, client: client, log: log.With(zap.String("source", cfg.Name))}, nil
}

func (s *apiSource) Name() string { return s.cfg.Name }

func (s *apiSource) Fetch(ctx context.Context) (Batch, error) {
	var batch Batch
	for page := 1; page <= s.cfg.MaxPages; page++ {
		u, err := url.Parse(s.cfg.URL)
		if err != nil {
			return Batch{}, fmt.Errorf("source %s: parse url: %w", s.cfg.Name, err)
		}
		q := u.Query()
		if s.cfg.Query != "" {
			q.Set("q", s.cfg.Query)
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("page_size", strconv.Itoa(s.cfg.PageSize))
		u.RawQuery = q.Encode()

		body, err := s.client.Get(ctx, u.String())
		if err != nil {
			if page == 1 {
				return Batch{}, err
			}
			s.log.Warn("stopping pagination", zap.Int("page", page), zap.Error(err))
			break
		}

		rows, err := decodeEnvelope(body)
		if err != nil {
			return Batch{}, fmt.Errorf("source %s: %w", s.cfg.Name, err)
		}
		if len(rows) == 0 {
			s.log.Debug("empty page, stopping pagination", zap.Int("page", page))
			break
		}

		mapped := 0
		for _, m := range rows {
			f, ok := s.mapRecord(m)
			if !ok {
				batch.Skipped++
				continue
			}
			batch.Filings = append(batch.Filings, f)
			mapped++
		}
		s.log.Info("parsed api page", zap.Int("page", page), zap.Int("records", mapped))

		if len(rows) < s.cfg.PageSize {
			break
		}
	}
	return batch, nil
}

// decodeEnvelope accepts {count, results|items|filings: [...]} wrappers or a
// bare top-level array. Anything else is a structural failure.
func decodeEnvelope(body []byte) ([]map[string]any, error) {
	var flat []map[string]any

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil && obj != nil {
		recognized := false
		if _, ok := obj["count"]; ok {
			recognized = true
		}
		for _, key := range []string{"results", "items", "filings"} {
			v, ok := obj[key]
			if !ok {
				continue
			}
			recognized = true
			arr, ok := v.([]any)
			if !ok {
				continue
			}
			for _, it := range arr {
				if m, ok := it.(map[string]any); ok {
					flat = append(flat, m)
				}
			}
		}
		if recognized {
			return flat, nil
		}
		return nil, errors.New("unrecognized response shape")
	}

	var arr []any
	if err := json.Unmarshal(body, &arr); err == nil {
		for _, it := range arr {
			if m, ok := it.(map[string]any); ok {
				flat = append(flat, m)
			}
		}
		return flat, nil
	}
	return nil, errors.New("unrecognized response shape")
}

// mapRecord maps one API record to a filing. Records without a document URL
// or a parsable date cannot be published and are skipped.
func (s *apiSource) mapRecord(m map[string]any) (model.Filing, bool) {
	docURL := pickStr(m, "url", "link", "pdf_url")
	if docURL == "" {
		s.log.Warn("skipping record without url")
		return model.Filing{}, false
	}

	dateStr := pickStr(m, "date", "issue_date", "published")
	published, err := parseDateFlexible(dateStr)
	if err != nil {
		s.log.Warn("skipping record", zap.String("url", docURL), zap.Error(err))
		return model.Filing{}, false
	}

	release := pickStr(m, "release_number", "releaseNo")
	if release == "" {
		if v, ok := m["id"]; ok && v != nil {
			release = fmt.Sprint(v)
		}
	}
	details := cleanText(pickStr(m, "details", "summary", "description"))

	return model.Filing{
		ID:           model.NewID(docURL),
		Title:        buildTitle(cleanText(release), details),
		Organization: cleanText(pickStr(m, "organization", "sro", "org")),
		FileNumber:   cleanText(pickStr(m, "file_number", "fileNo")),
		Published:    published,
		URL:          docURL,
		Summary:      details,
		Source:       s.cfg.Name,
	}, true
}
