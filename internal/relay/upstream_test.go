package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialer_DialAndReadFrames(t *testing.T) {
	frames := [][]byte{{0x00, 0x01}, {0x01, 0x02, 0x03}}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)
	}))
	t.Cleanup(srv.Close)

	conn, err := NewDialer().DialUpstream(context.Background(), wsURL(srv))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	for _, want := range frames {
		got, err := conn.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = conn.ReadFrame()
	assert.Error(t, err)
}

func TestDialer_FailsAgainstNonWebSocketEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := NewDialer().DialUpstream(context.Background(), wsURL(srv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDialer_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDialer().DialUpstream(ctx, "ws://127.0.0.1:1/consume/alpha")
	assert.Error(t, err)
}
