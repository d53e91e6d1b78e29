package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeInto(t *testing.T) {
	t.Run("fills missing identifiers without overwriting", func(t *testing.T) {
		dst := &HarvestedPaper{Title: "T", ArXivID: "2301.00001"}
		src := &HarvestedPaper{Title: "T", ArXivID: "9999.99999", DOI: "10.1234/t", SemanticScholarID: "s2"}

		MergeInto(dst, src)

		assert.Equal(t, "2301.00001", dst.ArXivID)
		assert.Equal(t, "10.1234/t", dst.DOI)
		assert.Equal(t, "s2", dst.SemanticScholarID)
	})

	t.Run("longer abstract wins, tie keeps existing", func(t *testing.T) {
		dst := &HarvestedPaper{Abstract: "short"}
		MergeInto(dst, &HarvestedPaper{Abstract: "a much longer abstract"})
		assert.Equal(t, "a much longer abstract", dst.Abstract)

		dst = &HarvestedPaper{Abstract: "aaaa"}
		MergeInto(dst, &HarvestedPaper{Abstract: "bbbb"})
		assert.Equal(t, "aaaa", dst.Abstract)
	})

	t.Run("citation count takes the max", func(t *testing.T) {
		dst := &HarvestedPaper{CitationCount: 10}
		MergeInto(dst, &HarvestedPaper{CitationCount: 500})
		assert.Equal(t, 500, dst.CitationCount)

		MergeInto(dst, &HarvestedPaper{CitationCount: 3})
		assert.Equal(t, 500, dst.CitationCount)
	})

	t.Run("fill-if-null scalars", func(t *testing.T) {
		date := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
		dst := &HarvestedPaper{}
		MergeInto(dst, &HarvestedPaper{
			Year: 2023, Venue: "NeurIPS", PublicationDate: &date,
			URL: "https://example.com/p", PDFURL: "https://example.com/p.pdf",
		})

		assert.Equal(t, 2023, dst.Year)
		assert.Equal(t, "NeurIPS", dst.Venue)
		require.NotNil(t, dst.PublicationDate)
		assert.Equal(t, date, *dst.PublicationDate)
		assert.Equal(t, "https://example.com/p", dst.URL)

		// Already-set values are kept.
		MergeInto(dst, &HarvestedPaper{Year: 1999, Venue: "Other"})
		assert.Equal(t, 2023, dst.Year)
		assert.Equal(t, "NeurIPS", dst.Venue)
	})

	t.Run("longer author list wins outright", func(t *testing.T) {
		dst := &HarvestedPaper{Authors: []string{"A. Author"}}
		MergeInto(dst, &HarvestedPaper{Authors: []string{"A. Author", "B. Author"}})
		assert.Equal(t, []string{"A. Author", "B. Author"}, dst.Authors)

		MergeInto(dst, &HarvestedPaper{Authors: []string{"C. Author"}})
		assert.Equal(t, []string{"A. Author", "B. Author"}, dst.Authors)
	})

	t.Run("keywords and fields are set unions", func(t *testing.T) {
		dst := &HarvestedPaper{Keywords: []string{"nlp", "transformers"}}
		MergeInto(dst, &HarvestedPaper{Keywords: []string{"attention", "nlp"}, FieldsOfStudy: []string{"Computer Science"}})

		assert.Equal(t, []string{"attention", "nlp", "transformers"}, dst.Keywords)
		assert.Equal(t, []string{"Computer Science"}, dst.FieldsOfStudy)
	})

	t.Run("merged values are order independent", func(t *testing.T) {
		a := HarvestedPaper{Title: "T", Abstract: "longer abstract here", CitationCount: 7, Keywords: []string{"x"}}
		b := HarvestedPaper{Title: "T", Abstract: "short", CitationCount: 42, Keywords: []string{"y"}}

		ab := a
		MergeInto(&ab, &b)
		ba := b
		MergeInto(&ba, &a)

		assert.Equal(t, ab.Abstract, ba.Abstract)
		assert.Equal(t, ab.CitationCount, ba.CitationCount)
		assert.Equal(t, ab.Keywords, ba.Keywords)
	})
}

func TestCanonicalPaperAbsorb(t *testing.T) {
	t.Run("applies the same policy to the durable row", func(t *testing.T) {
		row := NewCanonicalPaper(&HarvestedPaper{
			Title:   "T",
			ArXivID: "2301.00001v1",
			Source:  SourceTypeArXiv,
		})
		require.Equal(t, "2301.00001", row.ArXivID)
		require.Equal(t, SourceTypeArXiv, row.PrimarySource)

		row.Absorb(&HarvestedPaper{
			Title:         "T",
			ArXivID:       "2301.00001",
			DOI:           "https://doi.org/10.1234/T",
			CitationCount: 500,
			Source:        SourceTypeSemanticScholar,
		})

		assert.Equal(t, "2301.00001", row.ArXivID)
		assert.Equal(t, "10.1234/t", row.DOI)
		assert.Equal(t, 500, row.CitationCount)
		assert.Equal(t, []SourceType{SourceTypeArXiv, SourceTypeSemanticScholar}, row.Sources)
		assert.Equal(t, SourceTypeArXiv, row.PrimarySource)
	})

	t.Run("absorbing the same source twice records it once", func(t *testing.T) {
		row := NewCanonicalPaper(&HarvestedPaper{Title: "T", Source: SourceTypeOpenAlex})
		row.Absorb(&HarvestedPaper{Title: "T", Source: SourceTypeOpenAlex})
		assert.Equal(t, []SourceType{SourceTypeOpenAlex}, row.Sources)
	})
}

func TestHarvestConfig(t *testing.T) {
	t.Run("defaults fill sources and per-source cap", func(t *testing.T) {
		cfg := HarvestConfig{Keywords: []string{" graph neural networks ", ""}}
		cfg.ApplyDefaults()

		assert.Equal(t, []string{"graph neural networks"}, cfg.Keywords)
		assert.Equal(t, AllSourceTypes(), cfg.Sources)
		assert.Equal(t, DefaultMaxResultsPerSource, cfg.MaxResultsPerSource)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("defaults leave the caller's slices untouched", func(t *testing.T) {
		keywords := []string{" graph neural networks ", "", "transformers"}
		cfg := HarvestConfig{Keywords: keywords}
		cfg.ApplyDefaults()

		assert.Equal(t, []string{"graph neural networks", "transformers"}, cfg.Keywords)
		assert.Equal(t, []string{" graph neural networks ", "", "transformers"}, keywords)
	})

	t.Run("rejects empty keywords", func(t *testing.T) {
		cfg := HarvestConfig{Keywords: []string{"   "}}
		cfg.ApplyDefaults()
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects inverted year bounds", func(t *testing.T) {
		cfg := HarvestConfig{Keywords: []string{"k"}, YearFrom: 2024, YearTo: 2020}
		cfg.ApplyDefaults()
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown sources", func(t *testing.T) {
		cfg := HarvestConfig{Keywords: []string{"k"}, Sources: []SourceType{"pubmed"}}
		cfg.ApplyDefaults()
		assert.Error(t, cfg.Validate())
	})
}
