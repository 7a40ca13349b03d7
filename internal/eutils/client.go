package eutils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmedline/medmirror/internal/domain"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	DefaultRateLimit = 3.0

	// KeyedRateLimit is the rate limit NCBI grants with an API key.
	KeyedRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default wait for response headers.
	DefaultTimeout = 60 * time.Second

	// DefaultTool is the tool name reported to NCBI.
	DefaultTool = "medmirror"

	// MaxFetchSize is the maximum number of PMIDs per efetch request.
	MaxFetchSize = 100

	// sourceName is the human-readable name for this source.
	sourceName = "eUtils"
)

// Config holds the configuration for the eUtils client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Tool is the tool name reported to NCBI.
	// Defaults to DefaultTool if empty.
	Tool string

	// Timeout is the maximum wait for the response headers. The body is
	// streamed without a deadline: large pages are parsed and written to the
	// database while they download, which can far outlast any fixed timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to
	// DefaultRateLimit, or KeyedRateLimit when an API key is set.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int
}

// applyDefaults applies default values to the config.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Tool == "" {
		c.Tool = DefaultTool
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
		if c.APIKey != "" {
			c.RateLimit = KeyedRateLimit
		}
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// Client downloads citation XML from the eUtils efetch endpoint. It is safe
// for concurrent use.
type Client struct {
	config      Config
	httpClient  *http.Client
	rateLimiter *RateLimiter
	logger      zerolog.Logger
}

// New creates a new eUtils client with the given configuration.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		logger:      logger,
	}
}

// Fetch requests MEDLINE XML for up to MaxFetchSize PMIDs and returns the
// response body as a stream. The caller must close the returned reader.
func (c *Client) Fetch(ctx context.Context, pmids []int64) (io.ReadCloser, error) {
	if len(pmids) == 0 {
		return nil, fmt.Errorf("no PMIDs to fetch")
	}
	if len(pmids) > MaxFetchSize {
		return nil, fmt.Errorf("cannot fetch %d PMIDs at once, the limit is %d", len(pmids), MaxFetchSize)
	}

	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	ids := make([]string, len(pmids))
	for i, pmid := range pmids {
		ids[i] = strconv.FormatInt(pmid, 10)
	}

	q := u.Query()
	q.Set("tool", c.config.Tool)
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "medline")
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Int("pmids", len(pmids)).Msg("fetching citations from eUtils")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	return resp.Body, nil
}
