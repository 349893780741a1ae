package socket

import (
	"context"
	"encoding/json"
	"sync"

	"docspace/internal/document/model"
	"docspace/pkg/logger"
)

// WorkspaceRoom receives every event. Clients that connect with a docId
// join that document's room instead.
const WorkspaceRoom = ""

// DocumentLookup reports ErrNotFound-style errors for unknown documents.
type DocumentLookup func(ctx context.Context, docID string) error

type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan model.Event
	Register   chan *Client
	Unregister chan *Client

	lookup DocumentLookup
	mu     sync.Mutex
	quit   chan struct{}
	once   sync.Once
}

func NewHub(lookup DocumentLookup) *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan model.Event, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		lookup:     lookup,
		quit:       make(chan struct{}),
	}
}

// Publish hands ev to the hub loop. It gives up if ctx ends or the hub
// has stopped, so a mutation never hangs on the feed.
func (h *Hub) Publish(ctx context.Context, ev model.Event) {
	select {
	case h.Broadcast <- ev:
	case <-ctx.Done():
		logger.Sugar.Warnf("Dropped %s event for %s: %v", ev.Type, ev.DocumentID, ctx.Err())
	case <-h.quit:
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.quit) })
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.closeAll()
			return

		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.DocID] == nil {
				h.Rooms[client.DocID] = make(map[*Client]bool)
			}
			h.Rooms[client.DocID][client] = true
			h.mu.Unlock()
			logger.Sugar.Debugf("Client %s joined room %q", client.UserID, client.DocID)

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.Rooms[client.DocID][client]; ok {
				delete(h.Rooms[client.DocID], client)
				close(client.Send)
				if len(h.Rooms[client.DocID]) == 0 {
					delete(h.Rooms, client.DocID)
				}
			}
			h.mu.Unlock()

		case ev := <-h.Broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
				continue
			}

			// Collect recipients under the lock, write outside it.
			h.mu.Lock()
			recipients := h.recipients(ev)
			h.mu.Unlock()

			for _, client := range recipients {
				select {
				case client.Send <- payload:
				default:
					// The client is lagging. Drop it rather than block the hub.
					logger.Sugar.Warnf("Client %s's send buffer is full. Unregistering.", client.UserID)
					h.drop(client)
				}
			}
		}
	}
}

// ClientCount is the number of connected clients across all rooms.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, clients := range h.Rooms {
		n += len(clients)
	}
	return n
}

func (h *Hub) recipients(ev model.Event) []*Client {
	seen := make(map[*Client]bool)
	var out []*Client
	add := func(room string) {
		for client := range h.Rooms[room] {
			if !seen[client] {
				seen[client] = true
				out = append(out, client)
			}
		}
	}

	add(WorkspaceRoom)
	for room := range h.Rooms {
		if room != WorkspaceRoom && ev.Touches(room) {
			add(room)
		}
	}
	return out
}

// drop runs inside Run, so it can't go through the Unregister channel.
func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.Rooms[client.DocID][client]; ok {
		delete(h.Rooms[client.DocID], client)
		close(client.Send)
		if len(h.Rooms[client.DocID]) == 0 {
			delete(h.Rooms, client.DocID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, clients := range h.Rooms {
		for client := range clients {
			close(client.Send)
		}
		delete(h.Rooms, room)
	}
}
