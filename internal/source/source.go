package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edwinhu/sec-sro-rss/internal/config"
	"github.com/edwinhu/sec-sro-rss/internal/fetch"
	"github.com/edwinhu/sec-sro-rss/internal/model"
)

// Batch is one source's output for a run: normalized filings plus a count
// of listing rows or records that could not be parsed into one.
type Batch struct {
	Filings []model.Filing
	Skipped int
}

// Source produces normalized filings from one configured SEC endpoint.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Batch, error)
}

// New builds a source from its configuration. All sources share the same
// client so the politeness limiter covers the whole process.
func New(cfg config.SourceConfig, client *fetch.Client, log *zap.Logger) (Source, error) {
	switch cfg.Type {
	case "html":
		return newHTMLSource(cfg, client, log)
	case "api":
		return newAPISource(cfg, client, log)
	default:
		return nil, fmt.Errorf("source: unknown type %q", cfg.Type)
	}
}
