package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeedServer(t *testing.T, subscribed chan<- string, frames ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub control
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub.Symbol
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientStreamsObservations(t *testing.T) {
	subscribed := make(chan string, 1)
	srv := newFeedServer(t, subscribed,
		`{"type":"heartbeat"}`,
		`not json`,
		`{"type":"observation","data":[{"symbol":"BTCUSDT","timestamp":"2024-03-01T00:00:00Z","rsi":40},{"symbol":"BTCUSDT","timestamp":"2024-03-01T00:01:00Z","rsi":41}]}`,
	)

	c := New(wsURL(srv), []string{"BTCUSDT"}, WithToken("secret"), WithPingInterval(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx))
	assert.True(t, c.IsConnected())
	assert.Equal(t, "BTCUSDT", <-subscribed)

	out, errs := c.Read(ctx)
	var got []float64
	for len(got) < 2 {
		select {
		case o := <-out:
			got = append(got, o.RSI)
		case err := <-errs:
			t.Fatalf("unexpected error: %v", err)
		case <-ctx.Done():
			t.Fatal("timed out")
		}
	}
	assert.Equal(t, []float64{40, 41}, got)

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
	for range out {
	}
	_, open := <-errs
	assert.False(t, open)
}

func TestClientConnectRejected(t *testing.T) {
	srv := newFeedServer(t, make(chan string, 1))
	c := New(wsURL(srv), nil)
	err := c.Connect(context.Background())
	assert.Error(t, err)
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c := New("ws://127.0.0.1:1", []string{"BTCUSDT"})
	assert.ErrorIs(t, c.Subscribe(context.Background()), ErrNotConnected)
}

func TestReconnectStopsOnClose(t *testing.T) {
	c := New("ws://127.0.0.1:1", nil, WithReconnectDelay(10*time.Millisecond))
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Reconnect(context.Background()), ErrNotConnected)
}
