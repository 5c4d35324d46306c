package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPushReturnsPerItemResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/push", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req pushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "device-1", req.DeviceID)
		require.Equal(t, "message_create", req.Kind)
		require.Len(t, req.Mutations, 3)

		_ = json.NewEncoder(w).Encode(pushResponse{Results: []ItemResult{
			{Seq: 1, Accepted: true},
			{Seq: 2, Accepted: false, Error: "body too long"},
		}})
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("secret"), WithDeviceID("device-1"))
	results, err := c.Push(context.Background(), "message_create", []PushItem{
		{Seq: 1, Kind: "message_create", Payload: json.RawMessage(`{}`)},
		{Seq: 2, Kind: "message_create", Payload: json.RawMessage(`{}`)},
		{Seq: 3, Kind: "message_create", Payload: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.True(t, results[0].Accepted)
	require.False(t, results[1].Accepted)
	require.Equal(t, "body too long", results[1].Error)
	require.False(t, results[1].Retry)
	require.False(t, results[2].Accepted)
	require.True(t, results[2].Retry)
	require.Equal(t, int64(3), results[2].Seq)
}

func TestPullSendsWatermark(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/pull", r.URL.Path)
		require.Equal(t, "memberships", r.URL.Query().Get("kind"))
		require.Equal(t, "1500", r.URL.Query().Get("since"))
		require.Equal(t, "10", r.URL.Query().Get("limit"))
		_, _ = fmt.Fprint(w, `{"records":[{"userId":"u1"}],"watermark":2000,"hasMore":true}`)
	}))
	defer srv.Close()

	page, err := New(srv.URL).Pull(context.Background(), EntityMemberships, 1500, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, int64(2000), page.Watermark)
	require.True(t, page.HasMore)
}

func TestPullNeverMovesWatermarkBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"records":[],"watermark":0}`)
	}))
	defer srv.Close()

	page, err := New(srv.URL).Pull(context.Background(), EntityMessages, 900, 0)
	require.NoError(t, err)
	require.Equal(t, int64(900), page.Watermark)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{http.StatusUnauthorized, KindFatal},
		{http.StatusForbidden, KindFatal},
		{http.StatusBadRequest, KindRejected},
		{http.StatusUnprocessableEntity, KindRejected},
		{http.StatusTooManyRequests, KindTransient},
		{http.StatusRequestTimeout, KindTransient},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusServiceUnavailable, KindTransient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.code)
			}))
			defer srv.Close()

			_, err := New(srv.URL).Pull(context.Background(), EntityMessages, 0, 1)
			require.Error(t, err)
			require.Equal(t, tt.want, Classify(err))

			var se *StatusError
			require.True(t, errors.As(err, &se))
			require.Equal(t, tt.code, se.Code)
			require.Equal(t, "nope", se.Body)
		})
	}
}

func TestUnreachableIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	err := New(addr).Ping(context.Background())
	require.Error(t, err)
	require.Equal(t, KindOffline, Classify(err))
}

func TestTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).Pull(context.Background(), EntityMessages, 0, 1)
	require.Error(t, err)
	require.Equal(t, KindTransient, Classify(err))
}

func TestExpiredTokenIsFatalWithoutRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	c := New(srv.URL, WithToken(tok))
	_, err = c.Push(context.Background(), "membership_update", []PushItem{{Seq: 1}})
	require.ErrorIs(t, err, ErrFatal)
	_, err = c.Pull(context.Background(), EntityMessages, 0, 1)
	require.ErrorIs(t, err, ErrFatal)
	require.Zero(t, hits.Load())
}

func TestCheckToken(t *testing.T) {
	now := time.Now()
	valid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	require.NoError(t, checkToken("", now))
	require.NoError(t, checkToken("opaque-api-key", now))
	require.NoError(t, checkToken("not.a.jwt", now))
	require.NoError(t, checkToken(valid, now))
	require.ErrorIs(t, checkToken(valid, now.Add(2*time.Hour)), ErrFatal)
}

func TestListenerTriggersOnFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/changes", r.URL.Path)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.CloseNow() }()
		_ = conn.Write(context.Background(), websocket.MessageText, []byte(`{"kind":"messages"}`))
		// Block until the listener hangs up.
		_, _, _ = conn.Read(context.Background())
	}))
	defer srv.Close()

	changed := make(chan struct{}, 4)
	l := New(srv.URL).Listener(func() { changed <- struct{}{} }, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not report a change")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}
