package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"docspace/internal/document/model"
	"docspace/pkg/logger"

	"github.com/lib/pq"
)

var ErrNotFound = errors.New("document not found")

// Columns that can be cleared back to NULL.
const (
	FieldIcon       = "icon"
	FieldCoverImage = "cover_image"
)

const documentColumns = `id, title, content, cover_image, icon, parent_document, is_archived, is_published, created_at`

type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var d model.Document
	err := row.Scan(&d.ID, &d.Title, &d.Content, &d.CoverImage, &d.Icon, &d.ParentDocument,
		&d.IsArchived, &d.IsPublished, &d.CreationTime)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// scanOne maps sql.ErrNoRows to ErrNotFound.
func scanOne(row *sql.Row) (*model.Document, error) {
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (r *DocumentRepository) queryDocuments(ctx context.Context, query string, args ...any) ([]*model.Document, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*model.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) Insert(ctx context.Context, doc *model.Document) error {
	err := r.DB.QueryRowContext(ctx, `INSERT INTO documents (id, title, content, parent_document, is_archived, is_published)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		doc.ID, doc.Title, doc.Content, doc.ParentDocument, doc.IsArchived, doc.IsPublished,
	).Scan(&doc.CreationTime)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (*model.Document, error) {
	d, err := scanOne(r.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Sugar.Errorf("Failed to get doc %s: %v", id, err)
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, err
}

// List returns every document in insertion order, archived or not.
func (r *DocumentRepository) List(ctx context.Context) ([]*model.Document, error) {
	docs, err := r.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY seq ASC`)
	if err != nil {
		logger.Sugar.Errorf("Failed to list documents: %v", err)
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// ListActive returns non-archived documents, newest first. A nil scope
// returns all of them; otherwise only direct children of scope.Parent
// (root documents when Parent is nil).
func (r *DocumentRepository) ListActive(ctx context.Context, scope *model.Scope) ([]*model.Document, error) {
	where := []string{"is_archived = FALSE"}
	var args []any
	if scope != nil {
		if scope.Parent == nil {
			where = append(where, "parent_document IS NULL")
		} else {
			args = append(args, *scope.Parent)
			where = append(where, "parent_document = $1")
		}
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE ` + strings.Join(where, " AND ") + ` ORDER BY seq DESC`

	docs, err := r.queryDocuments(ctx, query, args...)
	if err != nil {
		logger.Sugar.Errorf("Failed to list active documents: %v", err)
		return nil, fmt.Errorf("list active documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) ListArchived(ctx context.Context) ([]*model.Document, error) {
	docs, err := r.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents WHERE is_archived = TRUE ORDER BY seq DESC`)
	if err != nil {
		logger.Sugar.Errorf("Failed to list archived documents: %v", err)
		return nil, fmt.Errorf("list archived documents: %w", err)
	}
	return docs, nil
}

// Update applies the non-nil fields of req.
func (r *DocumentRepository) Update(ctx context.Context, id string, req model.UpdateDocRequest) (*model.Document, error) {
	d, err := scanOne(r.DB.QueryRowContext(ctx, `UPDATE documents SET
			title = COALESCE($2, title),
			content = COALESCE($3, content),
			cover_image = COALESCE($4, cover_image),
			icon = COALESCE($5, icon),
			is_published = COALESCE($6, is_published),
			updated_at = NOW()
		WHERE id = $1 RETURNING `+documentColumns,
		id, req.Title, req.Content, req.CoverImage, req.Icon, req.IsPublished))
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Sugar.Errorf("Failed to update doc %s: %v", id, err)
		return nil, fmt.Errorf("update document: %w", err)
	}
	return d, err
}

// SetArchiveState flips the archived flag on a single document and, when
// detach is set, clears its parent reference in the same statement.
func (r *DocumentRepository) SetArchiveState(ctx context.Context, id string, archived, detach bool) (*model.Document, error) {
	d, err := scanOne(r.DB.QueryRowContext(ctx, `UPDATE documents SET
			is_archived = $2,
			parent_document = CASE WHEN $3::boolean THEN NULL ELSE parent_document END,
			updated_at = NOW()
		WHERE id = $1 RETURNING `+documentColumns,
		id, archived, detach))
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Sugar.Errorf("Failed to set archive state for doc %s: %v", id, err)
		return nil, fmt.Errorf("set archive state: %w", err)
	}
	return d, err
}

// SetArchived flips the archived flag on many documents at once.
func (r *DocumentRepository) SetArchived(ctx context.Context, ids []string, archived bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.DB.ExecContext(ctx, `UPDATE documents SET is_archived = $1, updated_at = NOW() WHERE id = ANY($2)`,
		archived, pq.Array(ids))
	if err != nil {
		logger.Sugar.Errorf("Failed to set archived=%t on %d docs: %v", archived, len(ids), err)
		return fmt.Errorf("set archived: %w", err)
	}
	return nil
}

// ChildIDs returns the ids of the direct children of parentID.
func (r *DocumentRepository) ChildIDs(ctx context.Context, parentID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM documents WHERE parent_document = $1 ORDER BY seq ASC`, parentID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list children of doc %s: %v", parentID, err)
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan child id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearField sets one of the optional asset columns back to NULL.
func (r *DocumentRepository) ClearField(ctx context.Context, id, field string) (*model.Document, error) {
	if field != FieldIcon && field != FieldCoverImage {
		return nil, fmt.Errorf("field %q cannot be cleared", field)
	}
	d, err := scanOne(r.DB.QueryRowContext(ctx,
		`UPDATE documents SET `+field+` = NULL, updated_at = NOW() WHERE id = $1 RETURNING `+documentColumns, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Sugar.Errorf("Failed to clear %s on doc %s: %v", field, id, err)
		return nil, fmt.Errorf("clear %s: %w", field, err)
	}
	return d, err
}

// Delete removes a single document. Children are left untouched.
func (r *DocumentRepository) Delete(ctx context.Context, id string) (*model.Document, error) {
	d, err := scanOne(r.DB.QueryRowContext(ctx, `DELETE FROM documents WHERE id = $1 RETURNING `+documentColumns, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Sugar.Errorf("Failed to delete doc %s: %v", id, err)
		return nil, fmt.Errorf("delete document: %w", err)
	}
	return d, err
}

func (r *DocumentRepository) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}
