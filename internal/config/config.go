package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var defaultTitlePatterns = []string{
	`Notice of Filing and Immediate Effectiveness`,
	`Filing and Immediate Effectiveness`,
}

var defaultKeywordPatterns = []string{
	`\bcrypto\b`,
	`\bcryptocurrency\b`,
	`\bcryptocurrencies\b`,
	`\bbitcoin\b`,
	`\bether\b`,
	`\bethereum\b`,
	`\bdigital\s+asset`,
	`\bblockchain\b`,
	`\bstablecoin\b`,
	`\btoken\b`,
	`\bBTC\b`,
	`\bETH\b`,
	`\bXRP\b`,
	`\bSOL\b`,
	`\bADA\b`,
	`\bDOGE\b`,
}

type FetchConfig struct {
	UserAgent     string  `yaml:"user_agent"`
	Timeout       string  `yaml:"timeout"`         // Go duration string, e.g. "30s"
	RatePerSecond float64 `yaml:"rate_per_second"` // politeness throttle shared by all sources
	Burst         int     `yaml:"burst"`
}

// RequestTimeout returns the per-request timeout as a duration.
func (f FetchConfig) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(f.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

type SourceConfig struct {
	Name     string `yaml:"name"` // label stamped on records, e.g. "finra"
	Type     string `yaml:"type"` // "html" or "api"
	URL      string `yaml:"url"`
	Query    string `yaml:"query"`     // api: title substring passed as q=
	PageSize int    `yaml:"page_size"` // api: records per page
	MaxPages int    `yaml:"max_pages"`
}

type FilterConfig struct {
	TitlePatterns   []string `yaml:"title_patterns"`   // matched against the title only
	KeywordPatterns []string `yaml:"keyword_patterns"` // matched against title + summary
}

type FeedConfig struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	ID          string `yaml:"id"`   // stable feed identity
	Link        string `yaml:"link"` // alternate link shown to readers
}

type OutputConfig struct {
	Dir       string `yaml:"dir"`        // publish directory (feed.xml, atom.xml, filings.json)
	StatePath string `yaml:"state_path"` // seen-filings state file
}

type MetricsConfig struct {
	GatewayURL string `yaml:"gateway_url"` // Pushgateway base URL; empty disables pushing
	Job        string `yaml:"job"`
}

type Config struct {
	Fetch   FetchConfig    `yaml:"fetch"`
	Sources []SourceConfig `yaml:"sources"`
	Filter  FilterConfig   `yaml:"filter"`
	Feed    FeedConfig     `yaml:"feed"`
	Output  OutputConfig   `yaml:"output"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

// Default returns the built-in configuration: the two SEC SRO rulemaking
// pages, the stock exclusion patterns, and docs/ as the publish directory.
func Default() Config {
	return Config{
		Fetch: FetchConfig{
			UserAgent:     defaultUserAgent,
			Timeout:       "30s",
			RatePerSecond: 0.5,
			Burst:         1,
		},
		Sources: []SourceConfig{
			{
				Name:     "national-securities-exchanges",
				Type:     "html",
				URL:      "https://www.sec.gov/rules-regulations/self-regulatory-organization-rulemaking/national-securities-exchanges",
				MaxPages: 3,
			},
			{
				Name:     "finra",
				Type:     "html",
				URL:      "https://www.sec.gov/rules-regulations/self-regulatory-organization-rulemaking/finra",
				MaxPages: 3,
			},
		},
		Filter: FilterConfig{
			TitlePatterns:   append([]string(nil), defaultTitlePatterns...),
			KeywordPatterns: append([]string(nil), defaultKeywordPatterns...),
		},
		Feed: FeedConfig{
			Title:       "SEC Self-Regulatory Organization Rulemaking",
			Description: "Filtered SEC SRO filings (excludes immediate effectiveness notices and crypto)",
			ID:          "https://github.com/edwinhu/sec-sro-rss",
			Link:        "https://www.sec.gov/rules-regulations/self-regulatory-organization-rulemaking",
		},
		Output: OutputConfig{
			Dir:       "docs",
			StatePath: "state/filings.json",
		},
		Metrics: MetricsConfig{Job: "sec-sro-rss"},
	}
}

// Load reads the YAML file at path on top of the built-in defaults.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// normalize fills per-source fallbacks for fields the file left at zero.
func (c *Config) normalize() {
	for i := range c.Sources {
		if c.Sources[i].MaxPages <= 0 {
			c.Sources[i].MaxPages = 3
		}
		if c.Sources[i].Type == "api" && c.Sources[i].PageSize <= 0 {
			c.Sources[i].PageSize = 20
		}
	}
}

func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("need at least one source")
	}
	for _, s := range c.Sources {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("source %q: name and url are required", s.Name)
		}
		if s.Type != "html" && s.Type != "api" {
			return fmt.Errorf("source %q: unknown type %q", s.Name, s.Type)
		}
		if s.MaxPages <= 0 {
			return fmt.Errorf("source %q: max_pages must be positive", s.Name)
		}
		if s.Type == "api" && s.PageSize <= 0 {
			return fmt.Errorf("source %q: page_size must be positive", s.Name)
		}
	}
	for _, p := range c.Filter.TitlePatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("title pattern %q: %w", p, err)
		}
	}
	for _, p := range c.Filter.KeywordPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("keyword pattern %q: %w", p, err)
		}
	}
	if c.Fetch.RatePerSecond <= 0 {
		return errors.New("fetch.rate_per_second must be positive")
	}
	if c.Output.Dir == "" || c.Output.StatePath == "" {
		return errors.New("output.dir and output.state_path are required")
	}
	return nil
}
