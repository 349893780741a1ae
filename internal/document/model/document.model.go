package model

import "time"

type Document struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Content        *string   `json:"content,omitempty"`
	CoverImage     *string   `json:"coverImage,omitempty"`
	Icon           *string   `json:"icon,omitempty"`
	ParentDocument *string   `json:"parentDocument,omitempty"`
	IsArchived     bool      `json:"isArchived"`
	IsPublished    bool      `json:"isPublished"`
	CreationTime   time.Time `json:"creationTime"`
}

// Clone returns a deep copy so callers can't mutate stored state through
// the optional pointer fields.
func (d *Document) Clone() *Document {
	c := *d
	c.Content = cloneString(d.Content)
	c.CoverImage = cloneString(d.CoverImage)
	c.Icon = cloneString(d.Icon)
	c.ParentDocument = cloneString(d.ParentDocument)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

type CreateDocRequest struct {
	Title          string  `json:"title"`
	ParentDocument *string `json:"parentDocument,omitempty"`
}

// UpdateDocRequest is a partial update: nil fields are left untouched.
type UpdateDocRequest struct {
	Title       *string `json:"title,omitempty"`
	Content     *string `json:"content,omitempty"`
	CoverImage  *string `json:"coverImage,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	IsPublished *bool   `json:"isPublished,omitempty"`
}

func (r UpdateDocRequest) IsEmpty() bool {
	return r.Title == nil && r.Content == nil && r.CoverImage == nil && r.Icon == nil && r.IsPublished == nil
}

// Scope narrows the active-documents query to the direct children of
// Parent. A nil *Scope means no parent filter at all; a Scope with a nil
// Parent means root documents.
type Scope struct {
	Parent *string
}

type CascadeResponse struct {
	Document *Document `json:"document"`
	// Set only when the caller asked to wait for descendants.
	Affected []string `json:"affected,omitempty"`
	Pending  bool     `json:"pending"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	EventCreated  = "created"
	EventUpdated  = "updated"
	EventArchived = "archived"
	EventRestored = "restored"
	EventRemoved  = "removed"
	EventCascade  = "cascade"
)

// Event is a change notification pushed to feed subscribers.
type Event struct {
	Type       string    `json:"type"`
	DocumentID string    `json:"documentId"`
	Document   *Document `json:"document,omitempty"`
	Affected   []string  `json:"affected,omitempty"`
	Origin     string    `json:"origin,omitempty"`
}

// Touches reports whether the event concerns the given document.
func (e Event) Touches(docID string) bool {
	if e.DocumentID == docID {
		return true
	}
	for _, id := range e.Affected {
		if id == docID {
			return true
		}
	}
	return false
}
