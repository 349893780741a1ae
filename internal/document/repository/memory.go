package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docspace/internal/document/model"
)

// MemoryRepository keeps documents in process memory. It backs the
// "memory" driver and the service tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string]*memoryRecord
	seq  int64
	now  func() time.Time
}

type memoryRecord struct {
	doc *model.Document
	seq int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		docs: make(map[string]*memoryRecord),
		now:  time.Now,
	}
}

func (m *MemoryRepository) Insert(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[doc.ID]; ok {
		return fmt.Errorf("insert document: duplicate id %s", doc.ID)
	}
	m.seq++
	doc.CreationTime = m.now()
	m.docs[doc.ID] = &memoryRecord{doc: doc.Clone(), seq: m.seq}
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.doc.Clone(), nil
}

func (m *MemoryRepository) List(_ context.Context) ([]*model.Document, error) {
	return m.collect(func(*model.Document) bool { return true }, false), nil
}

func (m *MemoryRepository) ListActive(_ context.Context, scope *model.Scope) ([]*model.Document, error) {
	return m.collect(func(d *model.Document) bool {
		if d.IsArchived {
			return false
		}
		if scope == nil {
			return true
		}
		return sameParent(d.ParentDocument, scope.Parent)
	}, true), nil
}

func (m *MemoryRepository) ListArchived(_ context.Context) ([]*model.Document, error) {
	return m.collect(func(d *model.Document) bool { return d.IsArchived }, true), nil
}

func (m *MemoryRepository) Update(_ context.Context, id string, req model.UpdateDocRequest) (*model.Document, error) {
	return m.mutate(id, func(d *model.Document) {
		if req.Title != nil {
			d.Title = *req.Title
		}
		if req.Content != nil {
			d.Content = cloneString(req.Content)
		}
		if req.CoverImage != nil {
			d.CoverImage = cloneString(req.CoverImage)
		}
		if req.Icon != nil {
			d.Icon = cloneString(req.Icon)
		}
		if req.IsPublished != nil {
			d.IsPublished = *req.IsPublished
		}
	})
}

func (m *MemoryRepository) SetArchiveState(_ context.Context, id string, archived, detach bool) (*model.Document, error) {
	return m.mutate(id, func(d *model.Document) {
		d.IsArchived = archived
		if detach {
			d.ParentDocument = nil
		}
	})
}

func (m *MemoryRepository) SetArchived(_ context.Context, ids []string, archived bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if rec, ok := m.docs[id]; ok {
			rec.doc.IsArchived = archived
		}
	}
	return nil
}

func (m *MemoryRepository) ChildIDs(_ context.Context, parentID string) ([]string, error) {
	children := m.collect(func(d *model.Document) bool {
		return d.ParentDocument != nil && *d.ParentDocument == parentID
	}, false)

	ids := make([]string, 0, len(children))
	for _, d := range children {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (m *MemoryRepository) ClearField(_ context.Context, id, field string) (*model.Document, error) {
	switch field {
	case FieldIcon:
		return m.mutate(id, func(d *model.Document) { d.Icon = nil })
	case FieldCoverImage:
		return m.mutate(id, func(d *model.Document) { d.CoverImage = nil })
	default:
		return nil, fmt.Errorf("field %q cannot be cleared", field)
	}
}

func (m *MemoryRepository) Delete(_ context.Context, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.docs, id)
	return rec.doc, nil
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }

// SetParent rewrites a parent link without any checks. Only tests need
// this, to build shapes the service refuses to create.
func (m *MemoryRepository) SetParent(id string, parent *string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.docs[id]; ok {
		rec.doc.ParentDocument = cloneString(parent)
	}
}

func (m *MemoryRepository) mutate(id string, fn func(*model.Document)) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	fn(rec.doc)
	return rec.doc.Clone(), nil
}

func (m *MemoryRepository) collect(keep func(*model.Document) bool, newestFirst bool) []*model.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*memoryRecord, 0, len(m.docs))
	for _, rec := range m.docs {
		if keep(rec.doc) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if newestFirst {
			return recs[i].seq > recs[j].seq
		}
		return recs[i].seq < recs[j].seq
	})

	docs := make([]*model.Document, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, rec.doc.Clone())
	}
	return docs
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
