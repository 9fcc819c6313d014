package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"bookstore/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPNotifierPostsMessage(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL, WithToken("s3cret"), WithHTTPClient(srv.Client()))
	err := n.Send(context.Background(), "ada@example.com", "hello", "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, sendRequest{To: "ada@example.com", Subject: "hello", HTML: "<p>hi</p>"}, got)
}

func TestHTTPNotifierBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL, WithRatePerMinute(0))
	for i := 0; i < breakerMinRequests; i++ {
		err := n.Send(context.Background(), "a@example.com", "s", "b")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status code: 502")
	}
	assert.Equal(t, "open", n.State())

	err := n.Send(context.Background(), "a@example.com", "s", "b")
	require.Error(t, err)
	assert.Equal(t, int32(breakerMinRequests), calls.Load(), "an open breaker does not call the relay")
}

func TestHTTPNotifierRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL, WithRatePerMinute(2))
	require.NoError(t, n.Send(context.Background(), "a@example.com", "s", "b"))
	require.NoError(t, n.Send(context.Background(), "a@example.com", "s", "b"))
	assert.ErrorIs(t, n.Send(context.Background(), "a@example.com", "s", "b"), ErrRateLimited)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Send(context.Background(), "a@example.com", "s", "b"))

	boom := errors.New("down")
	r.FailWith(boom)
	assert.ErrorIs(t, r.Send(context.Background(), "b@example.com", "s", "b"), boom)
	r.FailWith(nil)

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "a@example.com", msgs[0].To)
}

func TestAvailabilityMessage(t *testing.T) {
	user := &model.User{Email: "ada@example.com", Name: "Ada"}
	book := &model.Book{Title: "Dune <Deluxe>"}
	entry := &model.WaitingListEntry{Position: 2}

	subject, body, err := AvailabilityMessage(user, book, entry)
	require.NoError(t, err)
	assert.Equal(t, `"Dune <Deluxe>" is available`, subject)
	assert.Contains(t, body, "Hello Ada,")
	assert.Contains(t, body, "Dune &lt;Deluxe&gt;")
	assert.Contains(t, body, "number 2")

	user.Name = ""
	_, body, err = AvailabilityMessage(user, book, entry)
	require.NoError(t, err)
	assert.Contains(t, body, "Hello ada@example.com,")
}
