package domain

import "sort"

// The field-merge policy is shared by the in-run deduplicator and the
// canonical registry so an in-memory merge and a durable merge always agree:
// identifiers and scalar metadata fill only when missing, the longer abstract
// wins (ties keep the existing value), citation counts take the maximum, the
// longer author list wins outright, and keyword-like lists take the set union.

// MergeInto applies the merge policy to dst, folding in the fields of src.
// dst is the "primary" instance; its identity fields are never overwritten,
// only filled.
func MergeInto(dst, src *HarvestedPaper) {
	dst.DOI = fillIfEmpty(dst.DOI, src.DOI)
	dst.ArXivID = fillIfEmpty(dst.ArXivID, src.ArXivID)
	dst.SemanticScholarID = fillIfEmpty(dst.SemanticScholarID, src.SemanticScholarID)
	dst.OpenAlexID = fillIfEmpty(dst.OpenAlexID, src.OpenAlexID)

	dst.Abstract = longerString(dst.Abstract, src.Abstract)
	dst.CitationCount = maxInt(dst.CitationCount, src.CitationCount)

	if dst.Year == 0 {
		dst.Year = src.Year
	}
	dst.Venue = fillIfEmpty(dst.Venue, src.Venue)
	if dst.PublicationDate == nil {
		dst.PublicationDate = src.PublicationDate
	}
	dst.URL = fillIfEmpty(dst.URL, src.URL)
	dst.PDFURL = fillIfEmpty(dst.PDFURL, src.PDFURL)

	if len(src.Authors) > len(dst.Authors) {
		dst.Authors = src.Authors
	}
	dst.Keywords = unionStrings(dst.Keywords, src.Keywords)
	dst.FieldsOfStudy = unionStrings(dst.FieldsOfStudy, src.FieldsOfStudy)
}

// Absorb applies the same merge policy to a durable canonical row, folding in
// an incoming harvested paper and recording its source.
func (p *CanonicalPaper) Absorb(in *HarvestedPaper) {
	p.DOI = fillIfEmpty(p.DOI, NormalizeDOI(in.DOI))
	p.ArXivID = fillIfEmpty(p.ArXivID, NormalizeArXivID(in.ArXivID))
	p.SemanticScholarID = fillIfEmpty(p.SemanticScholarID, in.SemanticScholarID)
	p.OpenAlexID = fillIfEmpty(p.OpenAlexID, in.OpenAlexID)

	p.Abstract = longerString(p.Abstract, in.Abstract)
	p.CitationCount = maxInt(p.CitationCount, in.CitationCount)

	if p.Year == 0 {
		p.Year = in.Year
	}
	p.Venue = fillIfEmpty(p.Venue, in.Venue)
	if p.PublicationDate == nil {
		p.PublicationDate = in.PublicationDate
	}
	p.URL = fillIfEmpty(p.URL, in.URL)
	p.PDFURL = fillIfEmpty(p.PDFURL, in.PDFURL)

	if len(in.Authors) > len(p.Authors) {
		p.Authors = in.Authors
	}
	p.Keywords = unionStrings(p.Keywords, in.Keywords)
	p.FieldsOfStudy = unionStrings(p.FieldsOfStudy, in.FieldsOfStudy)

	if in.Source != "" && !p.HasSource(in.Source) {
		p.Sources = append(p.Sources, in.Source)
	}
}

// NewCanonicalPaper builds a fresh canonical row from a harvested paper.
// Identifier fields are stored normalized.
func NewCanonicalPaper(in *HarvestedPaper) *CanonicalPaper {
	p := &CanonicalPaper{
		Title:             in.Title,
		Abstract:          in.Abstract,
		Authors:           in.Authors,
		DOI:               NormalizeDOI(in.DOI),
		ArXivID:           NormalizeArXivID(in.ArXivID),
		SemanticScholarID: in.SemanticScholarID,
		OpenAlexID:        in.OpenAlexID,
		Year:              in.Year,
		Venue:             in.Venue,
		PublicationDate:   in.PublicationDate,
		CitationCount:     in.CitationCount,
		URL:               in.URL,
		PDFURL:            in.PDFURL,
		Keywords:          unionStrings(nil, in.Keywords),
		FieldsOfStudy:     unionStrings(nil, in.FieldsOfStudy),
		PrimarySource:     in.Source,
	}
	if in.Source != "" {
		p.Sources = []SourceType{in.Source}
	}
	return p
}

func fillIfEmpty(existing, incoming string) string {
	if existing != "" {
		return existing
	}
	return incoming
}

func longerString(existing, incoming string) string {
	if len(incoming) > len(existing) {
		return incoming
	}
	return existing
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// unionStrings returns the sorted set union of both slices, dropping empties.
// Sorting keeps the merged value independent of arrival order.
func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
