package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

const doiURLPrefix = "https://doi.org/"

// arxivVersionRegex matches a trailing version suffix on an arXiv ID,
// e.g. the "v2" in "2301.00001v2".
var arxivVersionRegex = regexp.MustCompile(`v\d+$`)

// HarvestedPaper is the ephemeral, run-scoped shape every source adapter
// normalizes into. It is created by an adapter, consumed by the deduplicator
// and the canonical registry, then discarded.
type HarvestedPaper struct {
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
	PDFURL            string     `json:"pdf_url,omitempty"`
	Keywords          []string   `json:"keywords,omitempty"`
	FieldsOfStudy     []string   `json:"fields_of_study,omitempty"`
	Source            SourceType `json:"source"`
	SourceRank        int        `json:"source_rank"`
}

// TitleHash returns the SHA-256 hex digest of the paper's title lower-cased,
// with whitespace collapsed and punctuation stripped. It is the last-resort
// identity key for papers that carry no external identifier.
func (p *HarvestedPaper) TitleHash() string {
	return HashTitle(p.Title)
}

// HashTitle normalizes a title and returns its SHA-256 hex digest.
func HashTitle(title string) string {
	normalized := NormalizeTitle(title)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizeTitle lower-cases a title, strips punctuation, and collapses
// whitespace runs into single spaces.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r > 127:
			// Keep non-ASCII letters; only ASCII punctuation is stripped.
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeDOI trims a DOI, strips any https://doi.org/ style prefix, and
// lower-cases the result. DOIs are case-insensitive per the DOI handbook.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, doiURLPrefix)
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}

// NormalizeArXivID strips any URL or path prefix and the version suffix from
// an arXiv ID: "http://arxiv.org/abs/2301.00001v2" becomes "2301.00001".
// Old-style IDs keep their category prefix ("hep-th/9901001").
func NormalizeArXivID(id string) string {
	id = strings.TrimSpace(id)
	if idx := strings.Index(id, "arxiv.org/abs/"); idx >= 0 {
		id = id[idx+len("arxiv.org/abs/"):]
	}
	id = strings.TrimPrefix(id, "arXiv:")
	return arxivVersionRegex.ReplaceAllString(id, "")
}

// Identifiers returns the paper's non-empty identifiers in priority order:
// DOI, arXiv ID, Semantic Scholar ID, OpenAlex ID, title hash. The title hash
// is always present, so the returned slice is never empty.
func (p *HarvestedPaper) Identifiers() []PaperRef {
	refs := make([]PaperRef, 0, 5)
	if doi := NormalizeDOI(p.DOI); doi != "" {
		refs = append(refs, PaperRef{Type: IdentifierTypeDOI, Value: doi})
	}
	if id := NormalizeArXivID(p.ArXivID); id != "" {
		refs = append(refs, PaperRef{Type: IdentifierTypeArXivID, Value: id})
	}
	if id := strings.TrimSpace(p.SemanticScholarID); id != "" {
		refs = append(refs, PaperRef{Type: IdentifierTypeSemanticScholarID, Value: id})
	}
	if id := strings.TrimSpace(p.OpenAlexID); id != "" {
		refs = append(refs, PaperRef{Type: IdentifierTypeOpenAlexID, Value: id})
	}
	refs = append(refs, PaperRef{Type: IdentifierTypeTitleHash, Value: p.TitleHash()})
	return refs
}

// PaperRef is a typed (identifier type, value) pair.
type PaperRef struct {
	Type  IdentifierType
	Value string
}

// CanonicalPaper is the one durable, deduplicated record representing a
// real-world paper across all sources that ever reported it. It is created on
// first sight and only ever mutated, never deleted, by subsequent upserts.
type CanonicalPaper struct {
	ID                int64        `json:"id"`
	Title             string       `json:"title"`
	Abstract          string       `json:"abstract,omitempty"`
	Authors           []string     `json:"authors,omitempty"`
	DOI               string       `json:"doi,omitempty"`
	ArXivID           string       `json:"arxiv_id,omitempty"`
	SemanticScholarID string       `json:"semantic_scholar_id,omitempty"`
	OpenAlexID        string       `json:"openalex_id,omitempty"`
	Year              int          `json:"year,omitempty"`
	Venue             string       `json:"venue,omitempty"`
	PublicationDate   *time.Time   `json:"publication_date,omitempty"`
	CitationCount     int          `json:"citation_count"`
	URL               string       `json:"url,omitempty"`
	PDFURL            string       `json:"pdf_url,omitempty"`
	Keywords          []string     `json:"keywords,omitempty"`
	FieldsOfStudy     []string     `json:"fields_of_study,omitempty"`
	PrimarySource     SourceType   `json:"primary_source"`
	Sources           []SourceType `json:"sources"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Identifiers returns the canonical row's non-empty identifiers in priority
// order, excluding the title hash (the hash is recomputed where needed).
func (p *CanonicalPaper) Identifiers() []PaperRef {
	refs := make([]PaperRef, 0, 4)
	if doi := NormalizeDOI(p.DOI); doi != "" {
		refs = append(refs, PaperRef{Type: IdentifierTypeDOI, Value: doi})
	}
	if id := NormalizeArXivID(p.ArXivID); id != "" {
		refs = append(refs, PaperRef{Type: IdentifierTypeArXivID, Value: id})
	}
	if id := strings.TrimSpace(p.SemanticScholarID); id != "" {
		refs = append(refs, PaperRef{Type: IdentifierTypeSemanticScholarID, Value: id})
	}
	if id := strings.TrimSpace(p.OpenAlexID); id != "" {
		refs = append(refs, PaperRef{Type: IdentifierTypeOpenAlexID, Value: id})
	}
	return refs
}

// HasSource reports whether the given source already appears in Sources.
func (p *CanonicalPaper) HasSource(s SourceType) bool {
	for _, existing := range p.Sources {
		if existing == s {
			return true
		}
	}
	return false
}
