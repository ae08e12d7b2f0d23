package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sakif/blog-feed/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(u, header)
}

// waitForSubscribers polls until the server side has registered n clients.
func waitForSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d subscribers, want %d", h.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandler_StreamsPublishedEvents(t *testing.T) {
	hub := newTestHub(t, 4)
	require.NoError(t, hub.Start())
	srv := httptest.NewServer(NewHandler(hub, nil, hub.logger))
	defer srv.Close()

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	defer conn.Close()
	waitForSubscribers(t, hub, 1)

	require.NoError(t, hub.Publish(model.PostEvent{Action: model.ActionDelete, PostID: "p9"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "posts", env.Event)
	assert.Equal(t, model.ActionDelete, env.Data.Action)
	assert.Equal(t, "p9", env.Data.PostID)
}

func TestHandler_ClientMessagesAreIgnored(t *testing.T) {
	hub := newTestHub(t, 4)
	require.NoError(t, hub.Start())
	srv := httptest.NewServer(NewHandler(hub, nil, hub.logger))
	defer srv.Close()

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	defer conn.Close()
	waitForSubscribers(t, hub, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"delete","postId":"x"}`)))
	require.NoError(t, hub.Publish(model.PostEvent{Action: model.ActionUpdate, Post: &model.Post{ID: "p1"}}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, model.ActionUpdate, env.Data.Action)
}

func TestHandler_DisconnectUnsubscribes(t *testing.T) {
	hub := newTestHub(t, 4)
	require.NoError(t, hub.Start())
	srv := httptest.NewServer(NewHandler(hub, nil, hub.logger))
	defer srv.Close()

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	waitForSubscribers(t, hub, 1)

	conn.Close()
	waitForSubscribers(t, hub, 0)
}

func TestHandler_RejectsUnknownOrigin(t *testing.T) {
	hub := newTestHub(t, 4)
	srv := httptest.NewServer(NewHandler(hub, []string{"https://app.example.com"}, hub.logger))
	defer srv.Close()

	_, resp, err := dial(t, srv, "https://evil.example.com")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	waitForSubscribers(t, hub, 0)

	conn, _, err := dial(t, srv, "https://app.example.com")
	require.NoError(t, err)
	conn.Close()
}

func TestHandler_ClosedHubRefusesConnections(t *testing.T) {
	hub := newTestHub(t, 4)
	hub.Close()
	srv := httptest.NewServer(NewHandler(hub, nil, hub.logger))
	defer srv.Close()

	_, resp, err := dial(t, srv, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
