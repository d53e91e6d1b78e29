package httpserver

import (
	"time"

	"github.com/scholium/harvest-service/internal/domain"
)

// Response types for JSON serialization.

type startHarvestResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type runResponse struct {
	RunID              string            `json:"run_id"`
	Status             string            `json:"status"`
	Keywords           []string          `json:"keywords"`
	Venues             []string          `json:"venues,omitempty"`
	Sources            []string          `json:"sources"`
	MaxPerSource       int               `json:"max_per_source"`
	PapersFound        int               `json:"papers_found"`
	PapersNew          int               `json:"papers_new"`
	PapersDeduplicated int               `json:"papers_deduplicated"`
	Errors             map[string]string `json:"errors,omitempty"`
	StartedAt          time.Time         `json:"started_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	Duration           string            `json:"duration,omitempty"`
}

type listRunsResponse struct {
	Runs          []runResponse `json:"runs"`
	NextPageToken string        `json:"next_page_token,omitempty"`
	TotalCount    int           `json:"total_count"`
}

type paperResponse struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	Abstract          string     `json:"abstract,omitempty"`
	Authors           []string   `json:"authors,omitempty"`
	DOI               string     `json:"doi,omitempty"`
	ArXivID           string     `json:"arxiv_id,omitempty"`
	SemanticScholarID string     `json:"semantic_scholar_id,omitempty"`
	OpenAlexID        string     `json:"openalex_id,omitempty"`
	Year              int        `json:"year,omitempty"`
	Venue             string     `json:"venue,omitempty"`
	PublicationDate   *time.Time `json:"publication_date,omitempty"`
	CitationCount     int        `json:"citation_count"`
	URL               string     `json:"url,omitempty"`
	PdfURL            string     `json:"pdf_url,omitempty"`
	Keywords          []string   `json:"keywords,omitempty"`
	FieldsOfStudy     []string   `json:"fields_of_study,omitempty"`
	PrimarySource     string     `json:"primary_source"`
	Sources           []string   `json:"sources"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type listPapersResponse struct {
	Papers        []paperResponse `json:"papers"`
	NextPageToken string          `json:"next_page_token,omitempty"`
	TotalCount    int             `json:"total_count"`
}

// Converter functions

func domainRunToResponse(run *domain.HarvestRun) runResponse {
	resp := runResponse{
		RunID:              run.RunID,
		Status:             string(run.Status),
		Keywords:           run.Keywords,
		Venues:             run.Venues,
		Sources:            sourcesToStrings(run.Sources),
		MaxPerSource:       run.MaxPerSource,
		PapersFound:        run.PapersFound,
		PapersNew:          run.PapersNew,
		PapersDeduplicated: run.PapersDeduplicated,
		Errors:             run.Errors,
		StartedAt:          run.StartedAt,
		CompletedAt:        run.CompletedAt,
	}
	if run.CompletedAt != nil {
		if d := run.CompletedAt.Sub(run.StartedAt); d > 0 {
			resp.Duration = d.String()
		}
	}
	return resp
}

func domainPaperToResponse(p *domain.CanonicalPaper) paperResponse {
	return paperResponse{
		ID:                p.ID,
		Title:             p.Title,
		Abstract:          p.Abstract,
		Authors:           p.Authors,
		DOI:               p.DOI,
		ArXivID:           p.ArXivID,
		SemanticScholarID: p.SemanticScholarID,
		OpenAlexID:        p.OpenAlexID,
		Year:              p.Year,
		Venue:             p.Venue,
		PublicationDate:   p.PublicationDate,
		CitationCount:     p.CitationCount,
		URL:               p.URL,
		PdfURL:            p.PDFURL,
		Keywords:          p.Keywords,
		FieldsOfStudy:     p.FieldsOfStudy,
		PrimarySource:     string(p.PrimarySource),
		Sources:           sourcesToStrings(p.Sources),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func sourcesToStrings(in []domain.SourceType) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
