package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Hoangbim/streamcast/internal/domain"
	"github.com/Hoangbim/streamcast/internal/metrics"
)

const (
	writeDeadline  = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongDeadline   = 60 * time.Second
	sendBufferSize = 16
)

// outboundMsg carries one websocket frame through the send queue. Text and
// binary share a single queue so that status messages and media frames reach
// the peer in the exact order the actors produced them.
type outboundMsg struct {
	messageType int
	data        []byte
}

// wsTransport adapts one upgraded websocket connection to
// domain.ClientTransport. All writes go through a single pump goroutine;
// enqueueing never blocks the caller.
type wsTransport struct {
	conn     *websocket.Conn
	clock    clockwork.Clock
	sendCh   chan outboundMsg
	doneCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newWSTransport(conn *websocket.Conn, clock clockwork.Clock) *wsTransport {
	t := &wsTransport{
		conn:   conn,
		clock:  clock,
		sendCh: make(chan outboundMsg, sendBufferSize),
		doneCh: make(chan struct{}),
	}
	t.configureKeepalive()
	t.wg.Add(1)
	go t.run()
	return t
}

func (t *wsTransport) SendText(data []byte) error {
	return t.enqueue(websocket.TextMessage, data)
}

func (t *wsTransport) SendBinary(data []byte) error {
	return t.enqueue(websocket.BinaryMessage, data)
}

func (t *wsTransport) enqueue(messageType int, data []byte) error {
	select {
	case <-t.doneCh:
		return domain.ErrTransportClosed
	default:
	}

	select {
	case t.sendCh <- outboundMsg{messageType: messageType, data: data}:
		return nil
	default:
		return domain.ErrSendBufferFull
	}
}

func (t *wsTransport) run() {
	ticker := t.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer t.wg.Done()

	for {
		select {
		case msg := <-t.sendCh:
			start := t.clock.Now()
			t.updateWriteDeadline()
			if err := t.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				// Unblocks the handler's read loop so teardown starts now
				// instead of at the read deadline.
				_ = t.conn.Close()
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(t.clock.Since(start).Seconds())
		case <-ticker.Chan():
			t.updateWriteDeadline()
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				_ = t.conn.Close()
				return
			}
		case <-t.doneCh:
			return
		}
	}
}

// Close sends a close frame with the given reason and tears the connection
// down. It waits for the pump goroutine to exit before writing the close
// frame so the connection is never written concurrently. Safe to call more
// than once.
func (t *wsTransport) Close(reason string) {
	t.stopOnce.Do(func() {
		close(t.doneCh)
		t.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		t.updateWriteDeadline()
		_ = t.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = t.conn.Close()
	})
}

// configureKeepalive arms the read deadline that the pump's pings keep
// alive: every pong from the peer pushes the deadline out again, so a dead
// peer fails the handler's read loop within pongDeadline.
func (t *wsTransport) configureKeepalive() {
	t.updateReadDeadline()
	t.conn.SetPongHandler(func(string) error {
		t.updateReadDeadline()
		return nil
	})
}

func (t *wsTransport) updateWriteDeadline() {
	_ = t.conn.SetWriteDeadline(t.clock.Now().Add(writeDeadline))
}

func (t *wsTransport) updateReadDeadline() {
	_ = t.conn.SetReadDeadline(t.clock.Now().Add(pongDeadline))
}
