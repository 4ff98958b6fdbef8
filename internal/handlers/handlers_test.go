package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-notify-go/internal/bus"
	"campus-notify-go/internal/client"
	"campus-notify-go/internal/hub"
	"campus-notify-go/internal/notify"
	"campus-notify-go/internal/store"
)

type testServer struct {
	*httptest.Server
	service *notify.Service
	store   *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.New(io.Discard)

	st := store.NewMemoryStore()
	eventBus := bus.NewMemoryBus(64)
	sessionHub := hub.NewHub(32, time.Minute, log)

	ctx, cancel := context.WithCancel(context.Background())
	go eventBus.Run(ctx, sessionHub.Deliver)
	t.Cleanup(func() {
		cancel()
		sessionHub.Close()
		eventBus.Close()
	})

	service := notify.NewService(st, eventBus, log)
	h := NewHandler(service, sessionHub, nil, nil, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", h.BindSessionHandler)
	mux.HandleFunc("/api/notifications", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListNotificationsHandler(w, r)
		case http.MethodPost:
			h.PublishHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/notifications/unread-count", h.UnreadCountHandler)
	mux.HandleFunc("/api/notifications/read-all", h.MarkAllReadHandler)
	mux.HandleFunc("/api/notifications/", h.MarkReadHandler)
	mux.HandleFunc("/events", h.SSEHandler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, service: service, store: st}
}

// sessionClient returns an http.Client whose cookie jar holds a bound
// session for the recipient.
func (ts *testServer) sessionClient(t *testing.T, recipientID int) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := &http.Client{Jar: jar}

	body, _ := json.Marshal(map[string]int{"recipient_id": recipientID})
	resp, err := c.Post(ts.URL+"/api/session", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return c
}

func (ts *testServer) engine(t *testing.T, recipientID int) *client.Engine {
	t.Helper()
	httpClient := ts.sessionClient(t, recipientID)
	e := client.NewEngine(
		&client.HTTPStoreClient{BaseURL: ts.URL, Client: httpClient},
		&client.SSEDialer{URL: ts.URL + "/events", Client: httpClient, Log: zerolog.New(io.Discard)},
		client.Config{
			BackoffBase:      10 * time.Millisecond,
			BackoffMax:       100 * time.Millisecond,
			MaxAttempts:      20,
			WriteRetryBudget: 3,
			PollInterval:     time.Hour,
			PageSize:         50,
		},
		zerolog.New(io.Discard),
	)
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func TestAPI_RequiresSession(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{
		"/api/notifications",
		"/api/notifications/unread-count",
		"/events",
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestAPI_ListAndMarkRead(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	n, err := ts.service.Publish(ctx, 1, "notice", "New Notice: Holiday", "body", 4)
	require.NoError(t, err)

	c := ts.sessionClient(t, 1)

	resp, err := c.Get(ts.URL + "/api/notifications?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Notifications []struct {
			ID   int  `json:"id"`
			Read bool `json:"read"`
		} `json:"notifications"`
		UnreadCount int `json:"unread_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, n.ID, list.Notifications[0].ID)
	assert.Equal(t, 1, list.UnreadCount)

	resp, err = c.Post(fmt.Sprintf("%s/api/notifications/%d/read", ts.URL, n.ID), "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	count, err := ts.service.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAPI_PublishEndpoint(t *testing.T) {
	ts := newTestServer(t)

	t.Run("single recipient", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"recipient_id": 1, "category": "marks", "title": "New Marks: DBMS",
		})
		resp, err := http.Post(ts.URL+"/api/notifications", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("broadcast", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"recipient_ids": []int{2, 3}, "category": "announcement", "title": "Exam schedule",
		})
		resp, err := http.Post(ts.URL+"/api/notifications", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		var out struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, 2, out.Count)
	})

	t.Run("rejects bad category", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"recipient_id": 1, "category": "weather", "title": "t",
		})
		resp, err := http.Post(ts.URL+"/api/notifications", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

// Full path: publish through the service, deliver over SSE, converge two
// sessions of the same recipient after one of them marks read.
func TestEndToEnd_PushAndConvergence(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	tabA := ts.engine(t, 1)
	tabB := ts.engine(t, 1)

	require.Eventually(t, func() bool {
		return tabA.State() == client.StateConnected && tabB.State() == client.StateConnected
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, ts.service.PublishNoticePosted(ctx, 1, 4, "Holiday"))

	require.Eventually(t, func() bool {
		return tabA.Unread() == 1 && tabB.Unread() == 1
	}, 5*time.Second, 10*time.Millisecond)

	items := tabA.Snapshot()
	require.Len(t, items, 1)

	tabA.MarkRead(items[0].ID)

	// A flips optimistically; B converges on the read confirmation.
	require.Eventually(t, func() bool {
		return tabA.Unread() == 0 && tabB.Unread() == 0
	}, 5*time.Second, 10*time.Millisecond)

	count, err := ts.service.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// A client that connects after the fact recovers the record via catch-up.
func TestEndToEnd_CatchUpAfterConnect(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, ts.service.PublishMarksUploaded(ctx, 1, "DBMS", "Midterm", 42, "Dr. Rao"))
	require.NoError(t, ts.service.PublishGrievanceUpdate(ctx, 1, 9, "resolved", "DBMS", "Midterm"))

	e := ts.engine(t, 1)

	require.Eventually(t, func() bool {
		return e.Unread() == 2 && len(e.Snapshot()) == 2
	}, 5*time.Second, 10*time.Millisecond)
}
