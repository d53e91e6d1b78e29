package openalex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholium/harvest-service/internal/domain"
	"github.com/scholium/harvest-service/internal/papersources"
)

// newTestClient creates a client configured for testing with the given server URL.
func newTestClient(serverURL string, enabled bool) *Client {
	cfg := Config{
		BaseURL:   serverURL,
		Email:     "test@example.com",
		Timeout:   5 * time.Second,
		RateLimit: 100, // High rate for testing
		BurstSize: 100,
		Enabled:   enabled,
	}

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		RetryDelay: time.Millisecond,
		UserAgent:  "TestClient/1.0",
	})

	return NewWithHTTPClient(cfg, httpClient)
}

// sampleSearchResponse returns a sample OpenAlex search response for testing.
func sampleSearchResponse() SearchResponse {
	return SearchResponse{
		Meta: Meta{
			Count:   2,
			Page:    1,
			PerPage: 25,
		},
		Results: []Work{
			{
				ID:              "https://openalex.org/W2741809807",
				DOI:             "https://doi.org/10.1038/nature12373",
				Title:           "CRISPR-Cas Systems for Editing",
				DisplayName:     "CRISPR-Cas Systems for Editing, Regulating and Targeting Genomes",
				PublicationYear: 2014,
				PublicationDate: "2014-06-05",
				Type:            "article",
				CitedByCount:    5000,
				OpenAccess: &OpenAccess{
					IsOA:     true,
					OAURL:    "https://europepmc.org/articles/pmc4022601?pdf=render",
					OAStatus: "gold",
				},
				Authorships: []Authorship{
					{
						AuthorPosition: "first",
						Author: AuthorInfo{
							ID:          "https://openalex.org/A1234567890",
							DisplayName: "John Smith",
						},
					},
					{
						AuthorPosition: "last",
						Author: AuthorInfo{
							ID:          "https://openalex.org/A9876543210",
							DisplayName: "Jane Doe",
						},
					},
				},
				PrimaryLocation: &Location{
					Source: &Source{
						ID:          "https://openalex.org/S123",
						DisplayName: "Nature Biotechnology",
						Type:        "journal",
					},
				},
				Concepts: []Concept{
					{DisplayName: "Biology", Level: 0, Score: 0.9},
					{DisplayName: "Genome editing", Level: 2, Score: 0.8},
				},
				IDs: IDs{
					OpenAlex: "https://openalex.org/W2741809807",
					DOI:      "https://doi.org/10.1038/nature12373",
				},
				AbstractInvertedIndex: map[string][]int{
					"CRISPR":   {0},
					"is":       {1},
					"a":        {2},
					"powerful": {3},
					"tool":     {4},
					"for":      {5},
					"genome":   {6},
					"editing.": {7},
				},
			},
			{
				ID:              "https://openalex.org/W2741809808",
				DOI:             "https://doi.org/10.1126/science.1234567",
				Title:           "Gene Therapy Advances",
				DisplayName:     "Gene Therapy Advances in 2023",
				PublicationYear: 2023,
				PublicationDate: "2023-01-15",
				Type:            "article",
				CitedByCount:    150,
				Authorships: []Authorship{
					{
						AuthorPosition: "first",
						Author: AuthorInfo{
							ID:          "https://openalex.org/A111",
							DisplayName: "Alice Johnson",
						},
					},
				},
				PrimaryLocation: &Location{
					Source: &Source{
						ID:          "https://openalex.org/S456",
						DisplayName: "Science",
						Type:        "journal",
					},
				},
				IDs: IDs{
					OpenAlex: "https://openalex.org/W2741809808",
					DOI:      "https://doi.org/10.1126/science.1234567",
				},
			},
		},
	}
}

func TestNew(t *testing.T) {
	t.Run("creates client with default config", func(t *testing.T) {
		client := New(Config{Enabled: true})

		require.NotNil(t, client)
		assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
		assert.Equal(t, DefaultTimeout, client.config.Timeout)
		assert.Equal(t, DefaultRateLimit, client.config.RateLimit)
		assert.Equal(t, DefaultBurstSize, client.config.BurstSize)
		assert.True(t, client.config.Enabled)
	})

	t.Run("creates client with custom config", func(t *testing.T) {
		cfg := Config{
			BaseURL:   "https://custom.api.org",
			Email:     "researcher@university.edu",
			Timeout:   60 * time.Second,
			RateLimit: 20.0,
			BurstSize: 20,
			Enabled:   true,
		}
		client := New(cfg)

		require.NotNil(t, client)
		assert.Equal(t, "https://custom.api.org", client.config.BaseURL)
		assert.Equal(t, "researcher@university.edu", client.config.Email)
		assert.Equal(t, 60*time.Second, client.config.Timeout)
		assert.Equal(t, 20.0, client.config.RateLimit)
		assert.Equal(t, 20, client.config.BurstSize)
	})

	t.Run("disabled client", func(t *testing.T) {
		client := New(Config{Enabled: false})
		require.NotNil(t, client)
		assert.False(t, client.IsEnabled())
	})
}

func TestClient_SourceType(t *testing.T) {
	client := New(Config{Enabled: true})
	assert.Equal(t, domain.SourceTypeOpenAlex, client.SourceType())
}

func TestClient_Name(t *testing.T) {
	client := New(Config{Enabled: true})
	assert.Equal(t, "OpenAlex", client.Name())
}

func TestClient_Search(t *testing.T) {
	t.Run("successful search", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/works", r.URL.Path)
			assert.Equal(t, "CRISPR", r.URL.Query().Get("search"))
			assert.Equal(t, "test@example.com", r.URL.Query().Get("mailto"))

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(sampleSearchResponse())
		}))
		defer server.Close()

		client := newTestClient(server.URL, true)
		result := client.Search(context.Background(), papersources.SearchParams{
			Query:      "CRISPR",
			MaxResults: 25,
		})

		require.Empty(t, result.Err)
		assert.Equal(t, domain.SourceTypeOpenAlex, result.Source)
		assert.Equal(t, 2, result.TotalFound)
		require.Len(t, result.Papers, 2)

		paper1 := result.Papers[0]
		assert.Equal(t, "CRISPR-Cas Systems for Editing, Regulating and Targeting Genomes", paper1.Title)
		assert.Equal(t, "10.1038/nature12373", paper1.DOI)
		assert.Equal(t, "W2741809807", paper1.OpenAlexID)
		assert.Equal(t, 2014, paper1.Year)
		assert.Equal(t, 5000, paper1.CitationCount)
		assert.Equal(t, "Nature Biotechnology", paper1.Venue)
		assert.Equal(t, []string{"John Smith", "Jane Doe"}, paper1.Authors)
		assert.Equal(t, "https://europepmc.org/articles/pmc4022601?pdf=render", paper1.PDFURL)
		assert.Equal(t, []string{"Biology", "Genome editing"}, paper1.FieldsOfStudy)
		assert.Equal(t, domain.SourceTypeOpenAlex, paper1.Source)

		// Abstract comes back in position order.
		assert.Equal(t, "CRISPR is a powerful tool for genome editing.", paper1.Abstract)

		paper2 := result.Papers[1]
		assert.Equal(t, "10.1126/science.1234567", paper2.DOI)
		assert.Equal(t, 2023, paper2.Year)
		assert.Empty(t, paper2.Abstract)

		assert.Equal(t, 0, paper1.SourceRank)
		assert.Equal(t, 1, paper2.SourceRank)
	})

	t.Run("year bounds become publication date filters", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			filter := r.URL.Query().Get("filter")
			assert.Contains(t, filter, "from_publication_date:2020-01-01")
			assert.Contains(t, filter, "to_publication_date:2023-12-31")

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(SearchResponse{})
		}))
		defer server.Close()

		client := newTestClient(server.URL, true)
		result := client.Search(context.Background(), papersources.SearchParams{
			Query:    "quantum",
			YearFrom: 2020,
			YearTo:   2023,
		})
		require.Empty(t, result.Err)
	})

	t.Run("venue filter applied post-fetch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(sampleSearchResponse())
		}))
		defer server.Close()

		client := newTestClient(server.URL, true)
		result := client.Search(context.Background(), papersources.SearchParams{
			Query:  "CRISPR",
			Venues: []string{"Science"},
		})

		require.Empty(t, result.Err)
		// "Science" substring-matches the Science paper; Nature Biotechnology
		// does not contain it.
		require.Len(t, result.Papers, 1)
		assert.Equal(t, "Gene Therapy Advances in 2023", result.Papers[0].Title)
	})

	t.Run("server error reported in result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": "invalid key"}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL, true)
		result := client.Search(context.Background(), papersources.SearchParams{Query: "CRISPR"})

		assert.NotEmpty(t, result.Err)
		assert.Empty(t, result.Papers)
		assert.Equal(t, domain.SourceTypeOpenAlex, result.Source)
	})

	t.Run("malformed response reported in result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		client := newTestClient(server.URL, true)
		result := client.Search(context.Background(), papersources.SearchParams{Query: "CRISPR"})

		assert.NotEmpty(t, result.Err)
		assert.Contains(t, result.Err, "decoding response")
	})
}

func TestReconstructAbstract(t *testing.T) {
	t.Run("empty index", func(t *testing.T) {
		assert.Empty(t, reconstructAbstract(nil))
		assert.Empty(t, reconstructAbstract(map[string][]int{}))
	})

	t.Run("repeated words", func(t *testing.T) {
		index := map[string][]int{
			"the": {0, 2},
			"cat": {1},
			"sat": {3},
		}
		assert.Equal(t, "the cat the sat", reconstructAbstract(index))
	})

	t.Run("oversized index rejected", func(t *testing.T) {
		positions := make([]int, 100_001)
		for i := range positions {
			positions[i] = i
		}
		assert.Empty(t, reconstructAbstract(map[string][]int{"word": positions}))
	})
}
