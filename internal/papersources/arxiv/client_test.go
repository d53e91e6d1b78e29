package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholium/harvest-service/internal/domain"
	"github.com/scholium/harvest-service/internal/papersources"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <opensearch:totalResults>42</opensearch:totalResults>
  <opensearch:startIndex>0</opensearch:startIndex>
  <opensearch:itemsPerPage>2</opensearch:itemsPerPage>
  <entry>
    <id>http://arxiv.org/abs/2301.12345v2</id>
    <title>Attention Is
      All You Need</title>
    <summary>  We propose a new
      architecture based solely on attention.  </summary>
    <published>2023-01-15T18:30:00Z</published>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <arxiv:doi>10.1000/TRANSFORMER</arxiv:doi>
    <arxiv:journal_ref>NeurIPS 2017</arxiv:journal_ref>
    <category term="cs.CL"/>
    <category term="cs.LG"/>
    <link href="http://arxiv.org/pdf/2301.12345v2" title="pdf" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2302.00001v1</id>
    <title>Quantum Error Correction Survey</title>
    <summary>A survey of quantum error correction.</summary>
    <published>2023-02-01T00:00:00Z</published>
    <author><name>Jane Doe</name></author>
    <category term="quant-ph"/>
  </entry>
</feed>`

func newTestClient(serverURL string) *Client {
	cfg := Config{
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
		Enabled: true,
	}

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  100, // High rate for testing
		BurstSize:  100,
		RetryDelay: time.Millisecond,
		UserAgent:  "TestClient/1.0",
	})

	return NewWithHTTPClient(cfg, httpClient)
}

func TestNew(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		client := New(Config{Enabled: true})

		require.NotNil(t, client)
		assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
		assert.Equal(t, DefaultTimeout, client.config.Timeout)
		assert.InDelta(t, 1.0/3.0, client.config.RateLimit, 1e-9)
		assert.Equal(t, 1, client.config.BurstSize)
	})

	t.Run("identity", func(t *testing.T) {
		client := New(Config{Enabled: true})
		assert.Equal(t, domain.SourceTypeArXiv, client.SourceType())
		assert.Equal(t, "arXiv", client.Name())
		assert.True(t, client.IsEnabled())
	})
}

func TestClient_Search(t *testing.T) {
	t.Run("parses atom feed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/query", r.URL.Path)
			assert.Equal(t, "all:transformers", r.URL.Query().Get("search_query"))
			assert.Equal(t, "submittedDate", r.URL.Query().Get("sortBy"))

			w.Header().Set("Content-Type", "application/atom+xml")
			w.Write([]byte(sampleFeed))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result := client.Search(context.Background(), papersources.SearchParams{
			Query:      "transformers",
			MaxResults: 10,
		})

		require.Empty(t, result.Err)
		assert.Equal(t, domain.SourceTypeArXiv, result.Source)
		assert.Equal(t, 42, result.TotalFound)
		require.Len(t, result.Papers, 2)

		paper := result.Papers[0]
		assert.Equal(t, "Attention Is All You Need", paper.Title)
		assert.Equal(t, "We propose a new architecture based solely on attention.", paper.Abstract)
		assert.Equal(t, "2301.12345", paper.ArXivID)
		assert.Equal(t, "10.1000/transformer", paper.DOI)
		assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, paper.Authors)
		assert.Equal(t, 2023, paper.Year)
		assert.Equal(t, "NeurIPS 2017", paper.Venue)
		assert.Equal(t, "https://arxiv.org/abs/2301.12345", paper.URL)
		assert.Equal(t, "http://arxiv.org/pdf/2301.12345v2", paper.PDFURL)
		assert.Equal(t, []string{"cs.CL", "cs.LG"}, paper.FieldsOfStudy)
		assert.Equal(t, domain.SourceTypeArXiv, paper.Source)

		// Second entry has no PDF link; a default one is synthesized.
		assert.Equal(t, "https://arxiv.org/pdf/2302.00001", result.Papers[1].PDFURL)

		// Ranks follow the feed's result order.
		assert.Equal(t, 0, result.Papers[0].SourceRank)
		assert.Equal(t, 1, result.Papers[1].SourceRank)
	})

	t.Run("year bounds become submittedDate filter", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query().Get("search_query")
			assert.Contains(t, q, "submittedDate:[202001010000 TO 202312312359]")

			w.Write([]byte(sampleFeed))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result := client.Search(context.Background(), papersources.SearchParams{
			Query:    "quantum",
			YearFrom: 2020,
			YearTo:   2023,
		})
		require.Empty(t, result.Err)
	})

	t.Run("venue filter applied post-fetch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(sampleFeed))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result := client.Search(context.Background(), papersources.SearchParams{
			Query:  "transformers",
			Venues: []string{"NeurIPS"},
		})

		require.Empty(t, result.Err)
		require.Len(t, result.Papers, 1)
		assert.Equal(t, "Attention Is All You Need", result.Papers[0].Title)
		// TotalFound reflects the source's count before filtering.
		assert.Equal(t, 42, result.TotalFound)
	})

	t.Run("server error reported in result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result := client.Search(context.Background(), papersources.SearchParams{Query: "transformers"})

		assert.NotEmpty(t, result.Err)
		assert.Empty(t, result.Papers)
	})
}

func TestBuildDateFilter(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		want     string
	}{
		{"both zero", 0, 0, ""},
		{"from only", 2020, 0, "submittedDate:[202001010000 TO *]"},
		{"to only", 0, 2023, "submittedDate:[* TO 202312312359]"},
		{"both", 2020, 2023, "submittedDate:[202001010000 TO 202312312359]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildDateFilter(tt.from, tt.to))
		})
	}
}
