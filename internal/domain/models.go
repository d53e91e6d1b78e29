// Package domain provides domain models and business logic for the Paper Harvest Service.
package domain

import (
	"time"
)

// RunStatus represents the lifecycle states of a harvest run.
// These values must match the database enum run_status.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusPartial, RunStatusFailed:
		return true
	default:
		return false
	}
}

// SourceType represents the source API that provided paper data.
// Values are stored as plain text in the database.
type SourceType string

const (
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
	SourceTypeOpenAlex        SourceType = "openalex"
)

// AllSourceTypes returns every known source type, in default configuration order.
func AllSourceTypes() []SourceType {
	return []SourceType{SourceTypeArXiv, SourceTypeSemanticScholar, SourceTypeOpenAlex}
}

// IsValid reports whether s is one of the known source types.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeArXiv, SourceTypeSemanticScholar, SourceTypeOpenAlex:
		return true
	default:
		return false
	}
}

// IdentifierType represents the type of academic paper identifier.
// These values must match the database enum identifier_type.
type IdentifierType string

const (
	IdentifierTypeDOI               IdentifierType = "doi"
	IdentifierTypeArXivID           IdentifierType = "arxiv_id"
	IdentifierTypeSemanticScholarID IdentifierType = "semantic_scholar_id"
	IdentifierTypeOpenAlexID        IdentifierType = "openalex_id"
	IdentifierTypeTitleHash         IdentifierType = "title_hash"
)

// PaperIdentifier represents one row of the identifier index: the durable
// mapping from (identifier type, external value) to a canonical paper id.
type PaperIdentifier struct {
	ID              int64
	PaperID         int64
	IdentifierType  IdentifierType
	IdentifierValue string
	SourceAPI       SourceType
	DiscoveredAt    time.Time
}

// PaperSourceRecord records that a canonical paper was reported by a source API.
type PaperSourceRecord struct {
	ID          int64
	PaperID     int64
	SourceAPI   SourceType
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}
