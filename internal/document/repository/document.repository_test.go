package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"docspace/internal/document/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var docCols = []string{"id", "title", "content", "cover_image", "icon", "parent_document", "is_archived", "is_published", "created_at"}

func newMockRepo(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDocumentRepository(db), mock
}

func TestInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	parent := "parent-1"

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs("doc-1", "Notes", nil, parent, false, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	doc := &model.Document{ID: "doc-1", Title: "Notes", ParentDocument: &parent}
	require.NoError(t, repo.Insert(context.Background(), doc))
	assert.Equal(t, created, doc.CreationTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = \\$1").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(docCols).
			AddRow("doc-1", "Notes", "body", nil, "🔥", nil, false, true, now))

	doc, err := repo.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Notes", doc.Title)
	require.NotNil(t, doc.Content)
	assert.Equal(t, "body", *doc.Content)
	assert.Nil(t, doc.CoverImage)
	require.NotNil(t, doc.Icon)
	assert.Nil(t, doc.ParentDocument)
	assert.True(t, doc.IsPublished)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetDatabaseError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = \\$1").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Get(context.Background(), "doc-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestListActiveScopes(t *testing.T) {
	parent := "p-1"
	tests := []struct {
		name  string
		scope *model.Scope
		query string
		args  []any
	}{
		{"unscoped", nil, "WHERE is_archived = FALSE ORDER BY seq DESC", nil},
		{"root", &model.Scope{}, "WHERE is_archived = FALSE AND parent_document IS NULL ORDER BY seq DESC", nil},
		{"children", &model.Scope{Parent: &parent}, "WHERE is_archived = FALSE AND parent_document = \\$1 ORDER BY seq DESC", []any{parent}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			rows := sqlmock.NewRows(docCols).
				AddRow("b", "B", nil, nil, nil, nil, false, false, time.Now()).
				AddRow("a", "A", nil, nil, nil, nil, false, false, time.Now())

			exp := mock.ExpectQuery(tt.query)
			if tt.args != nil {
				exp = exp.WithArgs(tt.args[0])
			}
			exp.WillReturnRows(rows)

			docs, err := repo.ListActive(context.Background(), tt.scope)
			require.NoError(t, err)
			require.Len(t, docs, 2)
			assert.Equal(t, "b", docs[0].ID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListArchivedEmpty(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("WHERE is_archived = TRUE ORDER BY seq DESC").
		WillReturnRows(sqlmock.NewRows(docCols))

	docs, err := repo.ListArchived(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestUpdateOnlyProvidedFields(t *testing.T) {
	repo, mock := newMockRepo(t)
	title := "Renamed"

	mock.ExpectQuery("UPDATE documents SET").
		WithArgs("doc-1", title, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(docCols).
			AddRow("doc-1", title, "kept", nil, nil, nil, false, false, time.Now()))

	doc, err := repo.Update(context.Background(), "doc-1", model.UpdateDocRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, doc.Title)
	assert.Equal(t, "kept", *doc.Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	title := "x"

	mock.ExpectQuery("UPDATE documents SET").
		WillReturnRows(sqlmock.NewRows(docCols))

	_, err := repo.Update(context.Background(), "missing", model.UpdateDocRequest{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetArchiveStateDetach(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("UPDATE documents SET(.+)is_archived = \\$2").
		WithArgs("doc-1", false, true).
		WillReturnRows(sqlmock.NewRows(docCols).
			AddRow("doc-1", "Notes", nil, nil, nil, nil, false, false, time.Now()))

	doc, err := repo.SetArchiveState(context.Background(), "doc-1", false, true)
	require.NoError(t, err)
	assert.False(t, doc.IsArchived)
	assert.Nil(t, doc.ParentDocument)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetArchived(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE documents SET is_archived = \\$1(.+)WHERE id = ANY\\(\\$2\\)").
		WithArgs(true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.SetArchived(context.Background(), []string{"a", "b"}, true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetArchivedNoIDsSkipsQuery(t *testing.T) {
	repo, mock := newMockRepo(t)

	require.NoError(t, repo.SetArchived(context.Background(), nil, true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChildIDs(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT id FROM documents WHERE parent_document = \\$1").
		WithArgs("p").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1").AddRow("c2"))

	ids, err := repo.ChildIDs(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)
}

func TestClearField(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("UPDATE documents SET cover_image = NULL").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(docCols).
			AddRow("doc-1", "Notes", nil, nil, "icon", nil, false, false, time.Now()))

	doc, err := repo.ClearField(context.Background(), "doc-1", FieldCoverImage)
	require.NoError(t, err)
	assert.Nil(t, doc.CoverImage)
	assert.NotNil(t, doc.Icon)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearFieldRejectsUnknownColumn(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, err := repo.ClearField(context.Background(), "doc-1", "title")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("DELETE FROM documents WHERE id = \\$1 RETURNING").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(docCols).
			AddRow("doc-1", "Notes", nil, nil, nil, nil, true, false, time.Now()))

	doc, err := repo.Delete(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
