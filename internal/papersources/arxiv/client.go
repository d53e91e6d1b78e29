// Package arxiv implements the papersources.PaperSource interface for the
// arXiv Atom API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/scholium/harvest-service/internal/domain"
	"github.com/scholium/harvest-service/internal/observability"
	"github.com/scholium/harvest-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit is one request every 3 seconds, per arXiv's published
	// API usage policy.
	DefaultRateLimit = 1.0 / 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// sourceName is the human-readable name for this source.
	sourceName = "arXiv"
)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// Enabled indicates whether this source is enabled for searches.
	Enabled bool

	// Metrics receives per-request observations; nil disables recording.
	Metrics *observability.Metrics
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// Client implements the papersources.PaperSource interface for arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Ensure Client implements PaperSource interface.
var _ papersources.PaperSource = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		SourceName: string(domain.SourceTypeArXiv),
		Metrics:    cfg.Metrics,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries arXiv for papers matching the given parameters. Failures
// are reported in the result's Err field; Search never returns out-of-band
// errors.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) domain.HarvestResult {
	result := domain.HarvestResult{Source: domain.SourceTypeArXiv}

	papers, total, err := c.search(ctx, params)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	// arXiv has no native venue filter; journal_ref is matched post-fetch.
	result.Papers = papersources.FilterByVenues(papers, params.Venues)
	result.TotalFound = total
	return result
}

func (c *Client) search(ctx context.Context, params papersources.SearchParams) ([]domain.HarvestedPaper, int, error) {
	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, 0, fmt.Errorf("building search URL: %w", err)
	}

	resp, err := c.httpClient.Get(ctx, searchURL)
	if err != nil {
		return nil, 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, 0, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	// Parse the Atom XML response (limit body to 10MB).
	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		return nil, 0, fmt.Errorf("decoding response: %w", err)
	}

	papers := make([]domain.HarvestedPaper, 0, len(feed.Entries))
	for i := range feed.Entries {
		if paper, ok := c.entryToPaper(&feed.Entries[i]); ok {
			paper.SourceRank = i
			papers = append(papers, paper)
		}
	}

	return papers, feed.TotalResults, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Close releases the client's network resources.
func (c *Client) Close() {
	c.httpClient.Close()
}

// buildSearchURL constructs the arXiv search API URL.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	searchQuery := "all:" + params.Query
	if dateFilter := buildDateFilter(params.YearFrom, params.YearTo); dateFilter != "" {
		searchQuery = searchQuery + " AND " + dateFilter
	}

	query := url.Values{}
	query.Set("search_query", searchQuery)

	maxResults := params.MaxResults
	if maxResults == 0 {
		maxResults = domain.DefaultMaxResultsPerSource
	}
	query.Set("max_results", strconv.Itoa(maxResults))

	// Sort by submission date (newest first)
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// buildDateFilter maps inclusive year bounds onto an arXiv submittedDate
// range. A zero bound is open on that side.
func buildDateFilter(yearFrom, yearTo int) string {
	if yearFrom == 0 && yearTo == 0 {
		return ""
	}

	fromStr := "*"
	if yearFrom > 0 {
		fromStr = fmt.Sprintf("%04d01010000", yearFrom)
	}

	toStr := "*"
	if yearTo > 0 {
		toStr = fmt.Sprintf("%04d12312359", yearTo)
	}

	return fmt.Sprintf("submittedDate:[%s TO %s]", fromStr, toStr)
}

// entryToPaper converts an arXiv Atom entry to a harvested paper. Entries
// without an extractable arXiv ID are skipped.
func (c *Client) entryToPaper(entry *Entry) (domain.HarvestedPaper, bool) {
	arxivID := domain.NormalizeArXivID(entry.ID)
	if arxivID == "" {
		return domain.HarvestedPaper{}, false
	}

	var pubDate *time.Time
	var pubYear int
	if entry.Published != "" {
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			pubDate = &t
			pubYear = t.Year()
		}
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	pdfURL := ""
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			pdfURL = link.Href
			break
		}
	}
	if pdfURL == "" {
		pdfURL = "https://arxiv.org/pdf/" + arxivID
	}

	categories := make([]string, 0, len(entry.Categories))
	for _, cat := range entry.Categories {
		if cat.Term != "" {
			categories = append(categories, cat.Term)
		}
	}

	return domain.HarvestedPaper{
		// arXiv wraps titles and abstracts across lines with indentation.
		Title:           normalizeWhitespace(entry.Title),
		Abstract:        normalizeWhitespace(entry.Summary),
		Authors:         authors,
		DOI:             domain.NormalizeDOI(entry.DOI),
		ArXivID:         arxivID,
		Year:            pubYear,
		Venue:           normalizeWhitespace(entry.JournalRef),
		PublicationDate: pubDate,
		URL:             "https://arxiv.org/abs/" + arxivID,
		PDFURL:          pdfURL,
		FieldsOfStudy:   categories,
		Source:          domain.SourceTypeArXiv,
	}, true
}

// normalizeWhitespace trims and collapses multiple whitespace characters.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
