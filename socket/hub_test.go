package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docspace/internal/document/model"
	"docspace/internal/document/repository"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to read messages from a WebSocket connection with a timeout.
func readEvent(t *testing.T, conn *websocket.Conn) model.Event {
	t.Helper()
	var ev model.Event
	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	require.NoError(t, json.Unmarshal(p, &ev), "Failed to unmarshal event JSON")
	return ev
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "expected no message")
}

func startHub(t *testing.T, known ...string) (*Hub, string) {
	t.Helper()
	lookup := func(_ context.Context, id string) error {
		for _, k := range known {
			if k == id {
				return nil
			}
		}
		return fmt.Errorf("lookup %s: %w", id, repository.ErrNotFound)
	}
	hub := NewHub(lookup)
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, r.URL.Query().Get("user_id"))
	}))
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubRoutesEventsToRooms(t *testing.T) {
	hub, wsURL := startHub(t, "doc-1", "doc-2")

	workspace := dial(t, wsURL+"/ws?user_id=user1")
	doc1 := dial(t, wsURL+"/ws?docId=doc-1&user_id=user2")
	doc2 := dial(t, wsURL+"/ws?docId=doc-2&user_id=user3")

	require.Eventually(t, func() bool { return hub.ClientCount() == 3 }, time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), model.Event{Type: model.EventUpdated, DocumentID: "doc-1"})

	assert.Equal(t, "doc-1", readEvent(t, workspace).DocumentID)
	assert.Equal(t, model.EventUpdated, readEvent(t, doc1).Type)

	// A cascade reaches rooms of every affected descendant.
	hub.Publish(context.Background(), model.Event{Type: model.EventCascade, DocumentID: "root", Affected: []string{"doc-2"}})

	ev := readEvent(t, doc2)
	assert.Equal(t, model.EventCascade, ev.Type)
	assert.Equal(t, []string{"doc-2"}, ev.Affected)
	assert.Equal(t, "root", readEvent(t, workspace).DocumentID)

	// doc-1 was not touched by the cascade. A timed-out read breaks the
	// connection, so this check goes last.
	expectSilence(t, doc1)
}

func TestServeWsRejectsUnknownDocument(t *testing.T) {
	_, wsURL := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws?docId=missing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, wsURL := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	hub.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(context.Background(), model.Event{Type: model.EventRemoved})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after Stop")
	}
}
