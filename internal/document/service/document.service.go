package service

import (
	"context"
	"errors"
	"fmt"

	"docspace/internal/document/model"
	"docspace/internal/document/repository"
	"docspace/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = repository.ErrNotFound
	ErrInvalidParent = errors.New("parent document does not exist")
)

// Repository is the document store the service delegates to.
type Repository interface {
	Insert(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context) ([]*model.Document, error)
	ListActive(ctx context.Context, scope *model.Scope) ([]*model.Document, error)
	ListArchived(ctx context.Context) ([]*model.Document, error)
	Update(ctx context.Context, id string, req model.UpdateDocRequest) (*model.Document, error)
	SetArchiveState(ctx context.Context, id string, archived, detach bool) (*model.Document, error)
	SetArchived(ctx context.Context, ids []string, archived bool) error
	ChildIDs(ctx context.Context, parentID string) ([]string, error)
	ClearField(ctx context.Context, id, field string) (*model.Document, error)
	Delete(ctx context.Context, id string) (*model.Document, error)
	Ping(ctx context.Context) error
}

// Publisher receives change events. Implementations must not block for
// long and handle their own delivery errors.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.Event) {}

type DocumentService struct {
	Repo     Repository
	Events   Publisher
	cascades *CascadeQueue
}

// NewDocumentService wires the service and starts its cascade worker.
// Call Close to drain pending cascades.
func NewDocumentService(repo Repository, events Publisher, queueLen int) *DocumentService {
	if events == nil {
		events = nopPublisher{}
	}
	s := &DocumentService{Repo: repo, Events: events}
	s.cascades = NewCascadeQueue(repo, queueLen, s.cascadeFinished)
	s.cascades.Start()
	return s
}

func (s *DocumentService) Close() {
	s.cascades.Stop()
}

func (s *DocumentService) Create(ctx context.Context, title string, parent *string) (*model.Document, error) {
	if parent != nil {
		if _, err := s.Repo.Get(ctx, *parent); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrInvalidParent, *parent)
			}
			return nil, err
		}
	}

	doc := &model.Document{
		ID:             uuid.NewString(),
		Title:          title,
		ParentDocument: parent,
		IsArchived:     false,
		IsPublished:    false,
	}
	if err := s.Repo.Insert(ctx, doc); err != nil {
		return nil, err
	}

	s.publish(ctx, model.Event{Type: model.EventCreated, DocumentID: doc.ID, Document: doc})
	return doc, nil
}

// Get returns every document, archived ones included.
func (s *DocumentService) Get(ctx context.Context) ([]*model.Document, error) {
	return s.Repo.List(ctx)
}

func (s *DocumentService) GetByID(ctx context.Context, id string) (*model.Document, error) {
	return s.Repo.Get(ctx, id)
}

// GetSidebar lists the active direct children of parent, or the active
// root documents when parent is nil.
func (s *DocumentService) GetSidebar(ctx context.Context, parent *string) ([]*model.Document, error) {
	return s.Repo.ListActive(ctx, &model.Scope{Parent: parent})
}

func (s *DocumentService) GetTrash(ctx context.Context) ([]*model.Document, error) {
	return s.Repo.ListArchived(ctx)
}

// GetSearch lists every active document regardless of parent.
func (s *DocumentService) GetSearch(ctx context.Context) ([]*model.Document, error) {
	return s.Repo.ListActive(ctx, nil)
}

func (s *DocumentService) Update(ctx context.Context, id string, req model.UpdateDocRequest) (*model.Document, error) {
	if req.IsEmpty() {
		return s.Repo.Get(ctx, id)
	}
	doc, err := s.Repo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, model.Event{Type: model.EventUpdated, DocumentID: id, Document: doc})
	return doc, nil
}

// Archive marks the document archived and queues the same change for all
// of its descendants. The returned Cascade reports when they are done.
func (s *DocumentService) Archive(ctx context.Context, id string) (*model.Document, *Cascade, error) {
	doc, err := s.Repo.SetArchiveState(ctx, id, true, false)
	if err != nil {
		return nil, nil, err
	}
	s.publish(ctx, model.Event{Type: model.EventArchived, DocumentID: id, Document: doc})
	return doc, s.enqueue(id, true), nil
}

// Restore un-archives the document and its descendants. A document whose
// parent is still archived is moved to the root so it stays visible.
func (s *DocumentService) Restore(ctx context.Context, id string) (*model.Document, *Cascade, error) {
	existing, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	detach := false
	if existing.ParentDocument != nil {
		parent, err := s.Repo.Get(ctx, *existing.ParentDocument)
		switch {
		case err == nil:
			detach = parent.IsArchived
		case !errors.Is(err, ErrNotFound):
			return nil, nil, err
		}
	}

	doc, err := s.Repo.SetArchiveState(ctx, id, false, detach)
	if err != nil {
		return nil, nil, err
	}
	s.publish(ctx, model.Event{Type: model.EventRestored, DocumentID: id, Document: doc})
	return doc, s.enqueue(id, false), nil
}

// Remove deletes one document. Its children are not touched and keep a
// parent reference to the deleted id.
func (s *DocumentService) Remove(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, model.Event{Type: model.EventRemoved, DocumentID: id})
	return doc, nil
}

func (s *DocumentService) RemoveIcon(ctx context.Context, id string) (*model.Document, error) {
	return s.clear(ctx, id, repository.FieldIcon)
}

func (s *DocumentService) RemoveCoverImage(ctx context.Context, id string) (*model.Document, error) {
	return s.clear(ctx, id, repository.FieldCoverImage)
}

func (s *DocumentService) Ping(ctx context.Context) error {
	return s.Repo.Ping(ctx)
}

func (s *DocumentService) clear(ctx context.Context, id, field string) (*model.Document, error) {
	doc, err := s.Repo.ClearField(ctx, id, field)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, model.Event{Type: model.EventUpdated, DocumentID: id, Document: doc})
	return doc, nil
}

func (s *DocumentService) enqueue(id string, archived bool) *Cascade {
	c := newCascade(id, archived)
	if err := s.cascades.Submit(c); err != nil {
		logger.Sugar.Warnf("Cascade for %s ran inline: %v", id, err)
	}
	return c
}

func (s *DocumentService) cascadeFinished(c *Cascade) {
	if len(c.affected) == 0 {
		return
	}
	s.publish(context.Background(), model.Event{
		Type:       model.EventCascade,
		DocumentID: c.RootID,
		Affected:   c.affected,
	})
}

func (s *DocumentService) publish(ctx context.Context, ev model.Event) {
	s.Events.Publish(ctx, ev)
}
