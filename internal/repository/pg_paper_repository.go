package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scholium/harvest-service/internal/database"
	"github.com/scholium/harvest-service/internal/domain"
)

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db DBTX
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db}
}

// paperColumns is the canonical column list shared by every SELECT; the
// order must match paperScanDest.destinations.
const paperColumns = `p.id, p.title, p.abstract, p.authors,
	p.doi, p.arxiv_id, p.semantic_scholar_id, p.openalex_id,
	p.year, p.venue, p.publication_date, p.citation_count,
	p.url, p.pdf_url, p.keywords, p.fields_of_study,
	p.primary_source, p.sources, p.created_at, p.updated_at`

// txStarter is the subset of the pool handle that can open a transaction.
type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Upsert persists one harvested paper into the canonical registry.
//
// The resolve-then-write sequence runs inside a single transaction holding an
// advisory xact lock keyed on the paper's strongest identifier, so concurrent
// upserts of the same paper serialize and an error on any step rolls the
// whole sequence back. The merge itself happens in Go via
// CanonicalPaper.Absorb so the registry and the in-run deduplicator share one
// merge policy.
func (r *PgPaperRepository) Upsert(ctx context.Context, paper *domain.HarvestedPaper) (*domain.CanonicalPaper, bool, error) {
	if paper == nil {
		return nil, false, domain.NewValidationError("paper", "paper cannot be nil")
	}
	if strings.TrimSpace(paper.Title) == "" {
		return nil, false, domain.NewValidationError("title", "title is required")
	}

	// On the pool this opens a real transaction; a repository built over
	// pgx.Tx gets a savepoint nested in the caller's transaction. A handle
	// that cannot begin at all is assumed to already be transaction-scoped.
	starter, ok := r.db.(txStarter)
	if !ok {
		return r.upsertLocked(ctx, r.db, paper)
	}

	tx, err := starter.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin upsert transaction: %w", err)
	}

	canonical, created, err := r.upsertLocked(ctx, tx, paper)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return nil, false, fmt.Errorf("%w (rollback error: %v)", err, rbErr)
		}
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit upsert transaction: %w", err)
	}

	return canonical, created, nil
}

// upsertLocked performs the locked resolve-then-write sequence on the given
// transaction handle.
func (r *PgPaperRepository) upsertLocked(ctx context.Context, tx database.DBTX, paper *domain.HarvestedPaper) (*domain.CanonicalPaper, bool, error) {
	txRepo := &PgPaperRepository{db: tx}

	// Identifiers always contains at least the title hash.
	refs := paper.Identifiers()
	lockKey := database.AdvisoryLockKey(refKey(refs[0]))
	if err := database.AcquireAdvisoryLockTx(ctx, tx, lockKey); err != nil {
		return nil, false, fmt.Errorf("failed to acquire upsert lock: %w", err)
	}

	existing, err := txRepo.ResolvePaper(ctx, paper)
	switch {
	case err == nil:
		existing.Absorb(paper)
		if err := txRepo.update(ctx, existing); err != nil {
			return nil, false, err
		}
		if err := txRepo.syncIdentifiers(ctx, existing, paper.Source); err != nil {
			return nil, false, err
		}
		return existing, false, nil

	case errors.Is(err, domain.ErrNotFound):
		canonical := domain.NewCanonicalPaper(paper)
		if err := txRepo.insert(ctx, canonical); err != nil {
			return nil, false, err
		}
		if err := txRepo.syncIdentifiers(ctx, canonical, paper.Source); err != nil {
			return nil, false, err
		}
		return canonical, true, nil

	default:
		return nil, false, err
	}
}

// UpsertBatch persists a batch of harvested papers one at a time, isolating
// per-paper failures in the result's Errors map. It stops early only when the
// context is done.
func (r *PgPaperRepository) UpsertBatch(ctx context.Context, papers []domain.HarvestedPaper) (*BatchUpsertResult, error) {
	result := &BatchUpsertResult{Errors: make(map[string]string)}

	for i := range papers {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		paper := &papers[i]
		_, created, err := r.Upsert(ctx, paper)
		if err != nil {
			result.Errors[paperKey(paper)] = err.Error()
			continue
		}
		if created {
			result.New++
		} else {
			result.Updated++
		}
	}

	return result, nil
}

// resolveProbe is one step in the resolution chain: a WHERE fragment over the
// papers table and its bound arguments.
type resolveProbe struct {
	where string
	args  []interface{}
}

// ResolvePaper finds the canonical row an incoming paper would merge into.
// Probes run in identity-strength order: arXiv ID, then DOI, then landing/PDF
// URL, then the case-folded title.
func (r *PgPaperRepository) ResolvePaper(ctx context.Context, paper *domain.HarvestedPaper) (*domain.CanonicalPaper, error) {
	if paper == nil {
		return nil, domain.NewValidationError("paper", "paper cannot be nil")
	}

	var probes []resolveProbe
	if id := domain.NormalizeArXivID(paper.ArXivID); id != "" {
		probes = append(probes, resolveProbe{where: "p.arxiv_id = $1", args: []interface{}{id}})
	}
	if doi := domain.NormalizeDOI(paper.DOI); doi != "" {
		probes = append(probes, resolveProbe{where: "p.doi = $1", args: []interface{}{doi}})
	}
	for _, u := range []string{paper.URL, paper.PDFURL} {
		if u != "" {
			probes = append(probes, resolveProbe{where: "(p.url = $1 OR p.pdf_url = $1)", args: []interface{}{u}})
		}
	}
	if title := strings.TrimSpace(paper.Title); title != "" {
		probes = append(probes, resolveProbe{where: "LOWER(p.title) = LOWER($1)", args: []interface{}{title}})
	}

	for _, probe := range probes {
		query := fmt.Sprintf("SELECT %s FROM papers p WHERE %s LIMIT 1", paperColumns, probe.where)
		found, err := scanPaper(r.db.QueryRow(ctx, query, probe.args...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("failed to resolve paper: %w", err)
		}
		return found, nil
	}

	return nil, domain.NewNotFoundError("paper", paperKey(paper))
}

// Resolve maps a loose reference to a canonical paper ID. A purely numeric
// ref is treated as the registry ID itself; otherwise the identifier index is
// tried with the ref interpreted as each identifier type in priority order,
// and the field-scan probe chain is the cold-start fallback.
func (r *PgPaperRepository) Resolve(ctx context.Context, ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, domain.NewValidationError("ref", "reference is required")
	}

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		paper, err := r.GetByID(ctx, id)
		if err != nil {
			return 0, err
		}
		return paper.ID, nil
	}

	candidates := []domain.PaperRef{
		{Type: domain.IdentifierTypeDOI, Value: domain.NormalizeDOI(ref)},
		{Type: domain.IdentifierTypeArXivID, Value: domain.NormalizeArXivID(ref)},
		{Type: domain.IdentifierTypeTitleHash, Value: domain.HashTitle(ref)},
	}
	for _, c := range candidates {
		if c.Value == "" {
			continue
		}
		paper, err := r.FindByIdentifier(ctx, c.Type, c.Value)
		if err == nil {
			return paper.ID, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}
	}

	// Cold-start path: rows that predate the identifier index.
	paper, err := r.ResolvePaper(ctx, &domain.HarvestedPaper{
		Title:   ref,
		ArXivID: ref,
		DOI:     ref,
		URL:     ref,
	})
	if err != nil {
		return 0, err
	}
	return paper.ID, nil
}

// FindByIdentifier looks a paper up through the identifier index.
func (r *PgPaperRepository) FindByIdentifier(ctx context.Context, idType domain.IdentifierType, value string) (*domain.CanonicalPaper, error) {
	if value == "" {
		return nil, domain.NewValidationError("value", "identifier value is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM papers p
		INNER JOIN paper_identifiers pi ON p.id = pi.paper_id
		WHERE pi.identifier_type = $1 AND pi.identifier_value = $2`, paperColumns)

	paper, err := scanPaper(r.db.QueryRow(ctx, query, idType, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", fmt.Sprintf("%s:%s", idType, value))
		}
		return nil, fmt.Errorf("failed to find paper by identifier: %w", err)
	}

	return paper, nil
}

// GetByID retrieves a canonical paper by its registry ID.
func (r *PgPaperRepository) GetByID(ctx context.Context, id int64) (*domain.CanonicalPaper, error) {
	query := fmt.Sprintf("SELECT %s FROM papers p WHERE p.id = $1", paperColumns)

	paper, err := scanPaper(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", fmt.Sprintf("%d", id))
		}
		return nil, fmt.Errorf("failed to get paper by ID: %w", err)
	}

	return paper, nil
}

// UpsertIdentifier adds an identifier index entry for a paper. An entry that
// already exists is repointed at the given paper, so index entries follow
// papers through merges.
func (r *PgPaperRepository) UpsertIdentifier(ctx context.Context, paperID int64, idType domain.IdentifierType, value string, sourceAPI domain.SourceType) error {
	if value == "" {
		return domain.NewValidationError("value", "identifier value is required")
	}

	query := `
		INSERT INTO paper_identifiers (paper_id, identifier_type, identifier_value, source_api, discovered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identifier_type, identifier_value) DO UPDATE SET
			paper_id = EXCLUDED.paper_id,
			source_api = EXCLUDED.source_api`

	_, err := r.db.Exec(ctx, query, paperID, idType, value, sourceAPI, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.NewNotFoundError("paper", fmt.Sprintf("%d", paperID))
		}
		return fmt.Errorf("failed to upsert identifier: %w", err)
	}

	return nil
}

// AddSource records that a paper was reported by a source API.
func (r *PgPaperRepository) AddSource(ctx context.Context, paperID int64, sourceAPI domain.SourceType) error {
	if sourceAPI == "" {
		return domain.NewValidationError("source_api", "source is required")
	}

	query := `
		INSERT INTO paper_sources (paper_id, source_api, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (paper_id, source_api) DO UPDATE SET
			last_seen_at = NOW()`

	result, err := r.db.Exec(ctx, query, paperID, sourceAPI, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.NewNotFoundError("paper", fmt.Sprintf("%d", paperID))
		}
		return fmt.Errorf("failed to add source: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("paper", fmt.Sprintf("%d", paperID))
	}

	return nil
}

// List retrieves canonical papers matching the filter criteria.
func (r *PgPaperRepository) List(ctx context.Context, filter PaperFilter) ([]*domain.CanonicalPaper, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	// Build dynamic WHERE clause
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.Source != nil {
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM paper_sources ps WHERE ps.paper_id = p.id AND ps.source_api = $%d)", argIndex))
		args = append(args, *filter.Source)
		argIndex++
	}

	if filter.YearFrom != 0 {
		conditions = append(conditions, fmt.Sprintf("p.year >= $%d", argIndex))
		args = append(args, filter.YearFrom)
		argIndex++
	}

	if filter.YearTo != 0 {
		// Rows with an unknown year (stored as 0) never satisfy an upper bound.
		conditions = append(conditions, fmt.Sprintf("p.year >= 1 AND p.year <= $%d", argIndex))
		args = append(args, filter.YearTo)
		argIndex++
	}

	if filter.Venue != "" {
		conditions = append(conditions, fmt.Sprintf("p.venue ILIKE '%%' || $%d || '%%'", argIndex))
		args = append(args, filter.Venue)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total matching records
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM papers p %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count papers: %w", err)
	}

	// Query with pagination
	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM papers p
		%s
		ORDER BY p.created_at DESC
		LIMIT $%d OFFSET $%d`,
		paperColumns, whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	papers := make([]*domain.CanonicalPaper, 0, filter.Limit)
	for rows.Next() {
		paper, err := scanPaperFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, paper)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating papers: %w", err)
	}

	return papers, totalCount, nil
}

// insert creates a fresh canonical row and fills in the generated ID and
// timestamps.
func (r *PgPaperRepository) insert(ctx context.Context, paper *domain.CanonicalPaper) error {
	js, err := marshalPaperJSON(paper)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO papers (
			title, abstract, authors,
			doi, arxiv_id, semantic_scholar_id, openalex_id,
			year, venue, publication_date, citation_count,
			url, pdf_url, keywords, fields_of_study,
			primary_source, sources, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18
		)
		RETURNING id, created_at, updated_at`

	now := time.Now().UTC()
	err = r.db.QueryRow(ctx, query,
		paper.Title,
		paper.Abstract,
		js.authors,
		paper.DOI,
		paper.ArXivID,
		paper.SemanticScholarID,
		paper.OpenAlexID,
		paper.Year,
		paper.Venue,
		paper.PublicationDate,
		paper.CitationCount,
		paper.URL,
		paper.PDFURL,
		js.keywords,
		js.fields,
		string(paper.PrimarySource),
		js.sources,
		now,
	).Scan(&paper.ID, &paper.CreatedAt, &paper.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// The per-identifier unique indexes caught a concurrent insert
			// that slipped past resolution.
			return domain.NewAlreadyExistsError("paper", paper.Title)
		}
		return fmt.Errorf("failed to insert paper: %w", err)
	}

	return nil
}

// update writes a merged canonical row back in full.
func (r *PgPaperRepository) update(ctx context.Context, paper *domain.CanonicalPaper) error {
	js, err := marshalPaperJSON(paper)
	if err != nil {
		return err
	}

	query := `
		UPDATE papers SET
			title = $1, abstract = $2, authors = $3,
			doi = $4, arxiv_id = $5, semantic_scholar_id = $6, openalex_id = $7,
			year = $8, venue = $9, publication_date = $10, citation_count = $11,
			url = $12, pdf_url = $13, keywords = $14, fields_of_study = $15,
			primary_source = $16, sources = $17, updated_at = $18
		WHERE id = $19`

	now := time.Now().UTC()
	result, err := r.db.Exec(ctx, query,
		paper.Title,
		paper.Abstract,
		js.authors,
		paper.DOI,
		paper.ArXivID,
		paper.SemanticScholarID,
		paper.OpenAlexID,
		paper.Year,
		paper.Venue,
		paper.PublicationDate,
		paper.CitationCount,
		paper.URL,
		paper.PDFURL,
		js.keywords,
		js.fields,
		string(paper.PrimarySource),
		js.sources,
		now,
		paper.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update paper: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("paper", fmt.Sprintf("%d", paper.ID))
	}

	paper.UpdatedAt = now
	return nil
}

// syncIdentifiers brings the identifier index up to date with the canonical
// row after an insert or merge, including the title hash.
func (r *PgPaperRepository) syncIdentifiers(ctx context.Context, paper *domain.CanonicalPaper, source domain.SourceType) error {
	refs := paper.Identifiers()
	refs = append(refs, domain.PaperRef{
		Type:  domain.IdentifierTypeTitleHash,
		Value: domain.HashTitle(paper.Title),
	})

	for _, ref := range refs {
		if err := r.UpsertIdentifier(ctx, paper.ID, ref.Type, ref.Value, source); err != nil {
			return fmt.Errorf("failed to sync identifier %s: %w", ref.Type, err)
		}
	}

	if source != "" {
		if err := r.AddSource(ctx, paper.ID, source); err != nil {
			return err
		}
	}

	return nil
}

// paperJSON holds the JSONB column payloads for one canonical row.
type paperJSON struct {
	authors  []byte
	keywords []byte
	fields   []byte
	sources  []byte
}

func marshalPaperJSON(paper *domain.CanonicalPaper) (paperJSON, error) {
	var js paperJSON
	var err error

	if js.authors, err = json.Marshal(paper.Authors); err != nil {
		return js, fmt.Errorf("failed to marshal authors: %w", err)
	}
	if js.keywords, err = json.Marshal(paper.Keywords); err != nil {
		return js, fmt.Errorf("failed to marshal keywords: %w", err)
	}
	if js.fields, err = json.Marshal(paper.FieldsOfStudy); err != nil {
		return js, fmt.Errorf("failed to marshal fields of study: %w", err)
	}
	if js.sources, err = json.Marshal(paper.Sources); err != nil {
		return js, fmt.Errorf("failed to marshal sources: %w", err)
	}

	return js, nil
}

// refKey renders a PaperRef as the "type:value" form used for lock keys and
// batch error maps.
func refKey(ref domain.PaperRef) string {
	return fmt.Sprintf("%s:%s", ref.Type, ref.Value)
}

// paperKey returns the harvested paper's strongest identifier as "type:value".
func paperKey(paper *domain.HarvestedPaper) string {
	return refKey(paper.Identifiers()[0])
}

// paperScanDest holds the destination pointers for scanning a canonical row.
type paperScanDest struct {
	paper         domain.CanonicalPaper
	authorsJSON   []byte
	keywordsJSON  []byte
	fieldsJSON    []byte
	sourcesJSON   []byte
	primarySource string
}

// destinations returns the slice of pointers for Scan operations; the order
// must match paperColumns.
func (d *paperScanDest) destinations() []interface{} {
	return []interface{}{
		&d.paper.ID, &d.paper.Title, &d.paper.Abstract, &d.authorsJSON,
		&d.paper.DOI, &d.paper.ArXivID, &d.paper.SemanticScholarID, &d.paper.OpenAlexID,
		&d.paper.Year, &d.paper.Venue, &d.paper.PublicationDate, &d.paper.CitationCount,
		&d.paper.URL, &d.paper.PDFURL, &d.keywordsJSON, &d.fieldsJSON,
		&d.primarySource, &d.sourcesJSON, &d.paper.CreatedAt, &d.paper.UpdatedAt,
	}
}

// finalize performs post-scan processing: unmarshals JSON fields.
func (d *paperScanDest) finalize() (*domain.CanonicalPaper, error) {
	if len(d.authorsJSON) > 0 {
		if err := json.Unmarshal(d.authorsJSON, &d.paper.Authors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal authors: %w", err)
		}
	}
	if len(d.keywordsJSON) > 0 {
		if err := json.Unmarshal(d.keywordsJSON, &d.paper.Keywords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
		}
	}
	if len(d.fieldsJSON) > 0 {
		if err := json.Unmarshal(d.fieldsJSON, &d.paper.FieldsOfStudy); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields of study: %w", err)
		}
	}
	if len(d.sourcesJSON) > 0 {
		if err := json.Unmarshal(d.sourcesJSON, &d.paper.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}
	d.paper.PrimarySource = domain.SourceType(d.primarySource)

	return &d.paper, nil
}

// scanPaper scans a single row into a CanonicalPaper.
func scanPaper(row pgx.Row) (*domain.CanonicalPaper, error) {
	var dest paperScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// scanPaperFromRows scans the current row from pgx.Rows into a CanonicalPaper.
func scanPaperFromRows(rows pgx.Rows) (*domain.CanonicalPaper, error) {
	var dest paperScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}
