package threads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/crawlshastra-backend/internal/domain/chat"
	apperr "github.com/yungbote/crawlshastra-backend/internal/pkg/errors"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(logger.Nop(), Config{BaseURL: srv.URL, Token: "tok", MaxRetries: 2, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestClientRoundTrips(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)
	thread := chat.ChatThread{ID: id, UserID: uuid.New(), CreatedAt: now, UpdatedAt: now,
		Messages: []chat.ChatMessage{chat.Greeting(now)}}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/chats":
			_ = json.NewEncoder(w).Encode([]chat.ChatThread{thread})
		case r.Method == http.MethodPost && r.URL.Path == "/chats":
			var p Payload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			assert.Nil(t, p.Title)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(thread)
		case r.Method == http.MethodPut && r.URL.Path == "/chats/"+id.String():
			var p Payload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			thread.Title = p.Title
			thread.Messages = p.Messages
			_ = json.NewEncoder(w).Encode(thread)
		case r.Method == http.MethodDelete && r.URL.Path == "/chats/"+id.String():
			_, _ = w.Write([]byte(`{"message":"Chat deleted successfully"}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ctx := context.Background()

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	created, err := c.Create(ctx, Payload{})
	require.NoError(t, err)
	assert.Equal(t, chat.GreetingText, created.Messages[0].Text)

	title := "hello..."
	msgs := append(created.Messages, chat.ChatMessage{MessageID: 2, Text: "hello", Sender: chat.SenderUser, Timestamp: now})
	updated, err := c.Update(ctx, id, Payload{Title: &title, Messages: msgs})
	require.NoError(t, err)
	require.NotNil(t, updated.Title)
	assert.Equal(t, title, *updated.Title)
	assert.Len(t, updated.Messages, 2)

	require.NoError(t, c.Delete(ctx, id))
}

func TestClientMapsStatuses(t *testing.T) {
	cases := map[int]error{
		http.StatusNotFound:            apperr.ErrNotFound,
		http.StatusUnauthorized:        apperr.ErrUnauthorized,
		http.StatusBadRequest:          apperr.ErrInvalidArgument,
		http.StatusInternalServerError: apperr.ErrStorage,
	}
	for status, want := range cases {
		status, want := status, want
		t.Run(http.StatusText(status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			})
			err := c.Delete(context.Background(), uuid.New())
			assert.ErrorIs(t, err, want)
		})
	}
}

func TestClientRetriesReadsOnly(t *testing.T) {
	var gets, posts int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if atomic.AddInt32(&gets, 1) < 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`[]`))
			return
		}
		atomic.AddInt32(&posts, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	list, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gets))

	_, err = c.Create(context.Background(), Payload{})
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.Equal(t, int32(1), atomic.LoadInt32(&posts))
}
