// Package dedup collapses harvested papers that refer to the same work into
// a single merged record.
//
// Two papers are the same work when they share any identifier: DOI, arXiv ID,
// Semantic Scholar ID, OpenAlex ID, or, when nothing stronger exists, a
// hash of the normalized title. Identifier lookups run in priority order, so
// a DOI match wins over a title match. Merging is handled by the shared
// domain merge policy and is order independent.
package dedup

import (
	"github.com/scholium/harvest-service/internal/domain"
)

// Deduplicator accumulates papers across sources and merges duplicates.
// It is not safe for concurrent use; the pipeline feeds it from a single
// goroutine after source fan-in.
type Deduplicator struct {
	// papers holds the merged survivors in first-seen order.
	papers []*domain.HarvestedPaper

	// index maps identifier type to identifier value to a position in papers.
	index map[domain.IdentifierType]map[string]int

	// duplicates counts papers that were merged into an existing survivor.
	duplicates int
}

// New creates an empty Deduplicator.
func New() *Deduplicator {
	d := &Deduplicator{}
	d.Reset()
	return d
}

// Add merges the paper into the accumulated set.
//
// The method:
//  1. Looks up each of the paper's identifiers in priority order
//     (DOI, arXiv ID, Semantic Scholar ID, OpenAlex ID, title hash).
//  2. On the first hit, merges the paper into the existing survivor,
//     indexes any identifiers the survivor was missing, and reports
//     the paper as a duplicate.
//  3. With no hit, the paper becomes a new survivor and all of its
//     identifiers are indexed.
//
// It returns true when the paper was merged into an existing survivor.
func (d *Deduplicator) Add(paper domain.HarvestedPaper) bool {
	refs := paper.Identifiers()

	for _, ref := range refs {
		pos, ok := d.index[ref.Type][ref.Value]
		if !ok {
			continue
		}

		existing := d.papers[pos]
		domain.MergeInto(existing, &paper)

		// The merge may have filled in identifiers the survivor lacked;
		// index them so later papers match on any of them.
		d.indexPaper(existing, pos)
		d.duplicates++
		return true
	}

	p := paper
	pos := len(d.papers)
	d.papers = append(d.papers, &p)
	d.indexPaper(&p, pos)
	return false
}

// IsDuplicate reports whether the paper would merge into an already-seen
// survivor, without recording it.
func (d *Deduplicator) IsDuplicate(paper domain.HarvestedPaper) bool {
	for _, ref := range paper.Identifiers() {
		if _, ok := d.index[ref.Type][ref.Value]; ok {
			return true
		}
	}
	return false
}

// AddAll merges every paper from the result set and returns how many were
// duplicates of already-seen papers.
func (d *Deduplicator) AddAll(papers []domain.HarvestedPaper) int {
	merged := 0
	for _, paper := range papers {
		if d.Add(paper) {
			merged++
		}
	}
	return merged
}

// Deduplicate collapses a batch of papers into unique merged records in a
// single call. It returns the survivors in first-seen order and the number
// of papers that merged into an earlier one.
func Deduplicate(papers []domain.HarvestedPaper) ([]domain.HarvestedPaper, int) {
	d := New()
	merged := d.AddAll(papers)
	return d.Papers(), merged
}

// Papers returns the merged survivors in first-seen order.
func (d *Deduplicator) Papers() []domain.HarvestedPaper {
	out := make([]domain.HarvestedPaper, len(d.papers))
	for i, p := range d.papers {
		out[i] = *p
	}
	return out
}

// Len returns the number of distinct papers accumulated so far.
func (d *Deduplicator) Len() int {
	return len(d.papers)
}

// Duplicates returns the number of papers merged into existing survivors.
func (d *Deduplicator) Duplicates() int {
	return d.duplicates
}

// Reset clears all accumulated state for reuse.
func (d *Deduplicator) Reset() {
	d.papers = nil
	d.duplicates = 0
	d.index = make(map[domain.IdentifierType]map[string]int)
	for _, t := range []domain.IdentifierType{
		domain.IdentifierTypeDOI,
		domain.IdentifierTypeArXivID,
		domain.IdentifierTypeSemanticScholarID,
		domain.IdentifierTypeOpenAlexID,
		domain.IdentifierTypeTitleHash,
	} {
		d.index[t] = make(map[string]int)
	}
}

func (d *Deduplicator) indexPaper(p *domain.HarvestedPaper, pos int) {
	for _, ref := range p.Identifiers() {
		if _, exists := d.index[ref.Type][ref.Value]; !exists {
			d.index[ref.Type][ref.Value] = pos
		}
	}
}
