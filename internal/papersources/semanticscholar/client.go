package semanticscholar

import (
	"context"
	"encoding/json"
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
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default rate limit in requests per second.
	// With an API key, this can be increased.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields requested from the API.
	paperFields = "paperId,externalIds,url,title,abstract,year,publicationDate,venue,journal,authors,citationCount,isOpenAccess,openAccessPdf,fieldsOfStudy"

	// sourceName is the human-readable name for this source.
	sourceName = "Semantic Scholar"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the API.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	// Authenticated requests have higher rate limits.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// Enabled indicates whether this source is enabled.
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

// Client implements the papersources.PaperSource interface for Semantic Scholar.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

// Compile-time check that Client implements papersources.PaperSource.
var _ papersources.PaperSource = (*Client)(nil)

// New creates a new Semantic Scholar client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		BurstSize:    cfg.BurstSize,
		APIKey:       cfg.APIKey,
		APIKeyHeader: apiKeyHeader,
		SourceName:   string(domain.SourceTypeSemanticScholar),
		Metrics:      cfg.Metrics,
	})

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// NewWithHTTPClient creates a new Semantic Scholar client with a custom HTTP
// client. This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Search queries Semantic Scholar for papers matching the given parameters.
// Failures are reported in the result's Err field.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) domain.HarvestResult {
	result := domain.HarvestResult{Source: domain.SourceTypeSemanticScholar}

	papers, total, err := c.search(ctx, params)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	result.Papers = papers
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

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, 0, err
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, 0, fmt.Errorf("decoding response: %w", err)
	}

	papers := make([]domain.HarvestedPaper, 0, len(searchResp.Data))
	for i := range searchResp.Data {
		paper := c.convertToPaper(&searchResp.Data[i])
		paper.SourceRank = i
		papers = append(papers, paper)
	}

	return papers, searchResp.Total, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Close releases the client's network resources.
func (c *Client) Close() {
	c.httpClient.Close()
}

// buildSearchURL constructs the search API URL with query parameters.
// Semantic Scholar supports year range and venue filters natively.
func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("paper", "search")

	q := searchURL.Query()
	q.Set("query", params.Query)
	q.Set("fields", paperFields)

	limit := params.MaxResults
	if limit <= 0 {
		limit = domain.DefaultMaxResultsPerSource
	}
	q.Set("limit", strconv.Itoa(limit))

	if yearFilter := buildYearFilter(params.YearFrom, params.YearTo); yearFilter != "" {
		q.Set("year", yearFilter)
	}

	if len(params.Venues) > 0 {
		q.Set("venue", strings.Join(params.Venues, ","))
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// buildYearFilter maps inclusive year bounds onto the API's year parameter
// ("2020-2023", "2020-", "-2023").
func buildYearFilter(yearFrom, yearTo int) string {
	switch {
	case yearFrom > 0 && yearTo > 0:
		return fmt.Sprintf("%d-%d", yearFrom, yearTo)
	case yearFrom > 0:
		return fmt.Sprintf("%d-", yearFrom)
	case yearTo > 0:
		return fmt.Sprintf("-%d", yearTo)
	default:
		return ""
	}
}

// handleErrorResponse checks for API errors and returns appropriate error types.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read error response", err)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		if message == "" {
			message = string(body)
		}
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil)
	}

	return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
}

// convertToPaper converts a single API paper result to a harvested paper.
func (c *Client) convertToPaper(result *PaperResult) domain.HarvestedPaper {
	paper := domain.HarvestedPaper{
		Title:             result.Title,
		Abstract:          result.Abstract,
		SemanticScholarID: result.PaperID,
		Year:              result.Year,
		Venue:             result.Venue,
		CitationCount:     result.CitationCount,
		URL:               result.URL,
		FieldsOfStudy:     result.FieldsOfStudy,
		Source:            domain.SourceTypeSemanticScholar,
	}

	if result.PublicationDate != "" {
		if pubDate, err := time.Parse("2006-01-02", result.PublicationDate); err == nil {
			paper.PublicationDate = &pubDate
		}
	}

	// Journal name fills in when the venue field is empty.
	if paper.Venue == "" && result.Journal != nil {
		paper.Venue = result.Journal.Name
	}

	if result.OpenAccessPDF != nil {
		paper.PDFURL = result.OpenAccessPDF.URL
	}

	if result.ExternalIDs != nil {
		paper.DOI = domain.NormalizeDOI(result.ExternalIDs.DOI)
		paper.ArXivID = domain.NormalizeArXivID(result.ExternalIDs.ArXiv)
	}

	authors := make([]string, 0, len(result.Authors))
	for _, a := range result.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}
	paper.Authors = authors

	return paper
}
