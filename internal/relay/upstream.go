package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hoangbim/streamcast/internal/domain"
)

const dialHandshakeTimeout = 10 * time.Second

// Dialer opens websocket connections to the upstream media server.
type Dialer struct {
	dialer *websocket.Dialer
}

func NewDialer() *Dialer {
	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialHandshakeTimeout,
		},
	}
}

// DialUpstream implements domain.UpstreamDialer. The dial aborts when ctx is
// cancelled.
func (d *Dialer) DialUpstream(ctx context.Context, addr string) (domain.UpstreamConn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("dial %s: %w (handshake status %s)", addr, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &upstreamConn{conn: conn}, nil
}

// upstreamConn adapts a websocket connection to the frame reader the relay
// consumes. Upstream payloads arrive as binary messages and stay opaque.
type upstreamConn struct {
	conn *websocket.Conn
}

func (u *upstreamConn) ReadFrame() ([]byte, error) {
	_, payload, err := u.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (u *upstreamConn) Close() error {
	return u.conn.Close()
}
