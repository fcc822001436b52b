package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Hoangbim/streamcast/internal/domain"
	"github.com/Hoangbim/streamcast/internal/fanout"
	"github.com/Hoangbim/streamcast/internal/metrics"
)

const cmdBufferSize = 64

// roomCmd is the command interface for the Room actor.
type roomCmd interface{ isRoomCmd() }

type baseRoomCmd struct{}

func (baseRoomCmd) isRoomCmd() {}

type joinCmd struct {
	baseRoomCmd
	transport domain.ClientTransport
	replyCh   chan uuid.UUID
}

type leaveCmd struct {
	baseRoomCmd
	clientID uuid.UUID
}

type inboundCmd struct {
	baseRoomCmd
	clientID uuid.UUID
	payload  []byte
}

type memberCountCmd struct {
	baseRoomCmd
	replyCh chan int
}

type stopCmd struct{ baseRoomCmd }

// Room is one chat room. All state is owned by the actor goroutine; public
// methods post commands. When the last member leaves the room hands itself
// back through onEmpty and the actor exits.
type Room struct {
	name       string
	history    domain.ChatHistory
	historyCap int
	clock      clockwork.Clock
	logger     *slog.Logger
	onEmpty    func(*Room)

	cmdCh chan roomCmd
	done  chan struct{}

	registry   *fanout.Registry
	dispatcher *fanout.Dispatcher
	stopping   bool
}

// NewRoom builds a room and starts its actor. onEmpty runs on the actor
// goroutine right before it exits and must not call back into the room.
func NewRoom(name string, history domain.ChatHistory, historyCap int, clock clockwork.Clock, onEmpty func(*Room)) *Room {
	registry := fanout.NewRegistry()
	r := &Room{
		name:       name,
		history:    history,
		historyCap: historyCap,
		clock:      clock,
		logger:     slog.With("room", name),
		onEmpty:    onEmpty,
		cmdCh:      make(chan roomCmd, cmdBufferSize),
		done:       make(chan struct{}),
		registry:   registry,
		dispatcher: fanout.NewDispatcher(registry),
	}
	go r.run()
	return r
}

func (r *Room) Name() string { return r.name }

// Join replays persisted history to the transport, registers it as a member,
// and announces it to the room. Returns domain.ErrRoomStopped when the room
// already shut down.
func (r *Room) Join(transport domain.ClientTransport) (uuid.UUID, error) {
	replyCh := make(chan uuid.UUID, 1)
	select {
	case r.cmdCh <- joinCmd{transport: transport, replyCh: replyCh}:
	case <-r.done:
		return uuid.Nil, domain.ErrRoomStopped
	}
	select {
	case id := <-replyCh:
		return id, nil
	case <-r.done:
		// The actor may have replied just before exiting. A join that was
		// processed is a join, even when the room wound down right after.
		select {
		case id := <-replyCh:
			return id, nil
		default:
			return uuid.Nil, domain.ErrRoomStopped
		}
	}
}

// HandleMemberClosed removes a member. Safe to call repeatedly and after the
// room stopped.
func (r *Room) HandleMemberClosed(clientID uuid.UUID) {
	select {
	case r.cmdCh <- leaveCmd{clientID: clientID}:
	case <-r.done:
	}
}

// HandleInbound feeds one raw text payload read from a member's connection.
func (r *Room) HandleInbound(clientID uuid.UUID, payload []byte) {
	select {
	case r.cmdCh <- inboundCmd{clientID: clientID, payload: payload}:
	case <-r.done:
	}
}

func (r *Room) MemberCount() int {
	replyCh := make(chan int, 1)
	select {
	case r.cmdCh <- memberCountCmd{replyCh: replyCh}:
	case <-r.done:
		return 0
	}
	select {
	case count := <-replyCh:
		return count
	case <-r.done:
		return 0
	}
}

// Stop disconnects all members and terminates the actor. Blocks until done.
func (r *Room) Stop() {
	select {
	case r.cmdCh <- stopCmd{}:
	case <-r.done:
		return
	}
	<-r.done
}

func (r *Room) run() {
	defer close(r.done)
	for {
		cmd := <-r.cmdCh
		switch c := cmd.(type) {
		case joinCmd:
			r.handleJoin(c)
		case leaveCmd:
			r.handleLeave(c)
		case inboundCmd:
			r.handleInbound(c)
		case memberCountCmd:
			c.replyCh <- r.registry.Size()
		case stopCmd:
			r.stopping = true
		}
		if r.stopping {
			r.finalize()
			return
		}
	}
}

func (r *Room) handleJoin(c joinCmd) {
	id := uuid.New()

	if !r.replayHistory(id, c.transport) {
		// The member died during replay and was never registered. A fresh
		// room that loses its only join attempt must still wind down.
		if r.registry.Size() == 0 {
			r.emptied()
		}
		c.replyCh <- id
		return
	}

	r.registry.Add(id, c.transport)
	metrics.ChatConnectedMembers.Inc()
	r.logger.Info("member joined chat", "client_id", id, "members", r.registry.Size())

	r.broadcastNotice(memberName(id) + " joined the chat")
	if r.registry.Size() == 0 {
		// The join notice already evicted the joiner.
		r.emptied()
	}
	c.replyCh <- id
}

func (r *Room) handleLeave(c leaveCmd) {
	transport, ok := r.registry.Get(c.clientID)
	if !ok {
		return
	}
	r.registry.Remove(c.clientID)
	transport.Close("member closed")
	metrics.ChatConnectedMembers.Dec()
	r.logger.Debug("member left chat", "client_id", c.clientID, "members", r.registry.Size())

	if r.registry.Size() == 0 {
		r.emptied()
		return
	}
	r.broadcastNotice(memberName(c.clientID) + " left the chat")
	if r.registry.Size() == 0 {
		r.emptied()
	}
}

func (r *Room) handleInbound(c inboundCmd) {
	if _, ok := r.registry.Get(c.clientID); !ok {
		return
	}

	var inbound domain.ChatInbound
	if err := json.Unmarshal(c.payload, &inbound); err != nil {
		r.logger.Debug("dropping malformed chat payload", "client_id", c.clientID, "error", err)
		return
	}
	text := strings.TrimSpace(inbound.Text)
	if inbound.Type != "chat" || text == "" {
		r.logger.Debug("dropping malformed chat payload", "client_id", c.clientID, "payload_type", inbound.Type)
		return
	}

	msg := domain.NewChatMessage(memberName(c.clientID), text, r.clock.Now())
	if err := r.history.Append(context.Background(), r.name, msg); err != nil {
		metrics.ChatHistoryErrorsTotal.WithLabelValues("append").Inc()
		r.logger.Warn("failed to persist chat message", "error", err)
	}
	metrics.ChatMessagesTotal.Inc()

	r.broadcast(msg)
	if r.registry.Size() == 0 {
		r.emptied()
	}
}

// replayHistory unicasts persisted messages oldest first. A failed fetch
// degrades to an empty replay; a failed send reports the member as gone.
func (r *Room) replayHistory(id uuid.UUID, transport domain.ClientTransport) bool {
	msgs, err := r.history.Recent(context.Background(), r.name, r.historyCap)
	if err != nil {
		metrics.ChatHistoryErrorsTotal.WithLabelValues("recent").Inc()
		r.logger.Warn("history replay unavailable", "error", err)
		return true
	}
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := transport.SendText(data); err != nil {
			transport.Close("send failed")
			r.logger.Debug("member dropped during history replay", "client_id", id)
			return false
		}
	}
	return true
}

func (r *Room) broadcastNotice(text string) {
	r.broadcast(domain.NewChatNotice(text, r.clock.Now()))
}

func (r *Room) broadcast(msg domain.ChatMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("failed to marshal chat message", "error", err)
		return
	}
	for _, id := range r.dispatcher.BroadcastText(data) {
		metrics.ChatConnectedMembers.Dec()
		r.logger.Warn("evicting unresponsive chat member", "client_id", id)
	}
}

// emptied runs at most once per room. The manager forgets the room and the
// actor exits after the current command; history stays in the store for the
// next room under this name.
func (r *Room) emptied() {
	if r.stopping {
		return
	}
	r.stopping = true
	if r.onEmpty != nil {
		r.onEmpty(r)
	}
	r.logger.Info("last member left, chat room closed")
}

func (r *Room) finalize() {
	disconnected := 0
	r.registry.ForEach(func(id uuid.UUID, transport domain.ClientTransport) {
		r.registry.Remove(id)
		transport.Close("room shutting down")
		disconnected++
	})
	if disconnected > 0 {
		metrics.ChatConnectedMembers.Sub(float64(disconnected))
		r.logger.Info("chat room stopped", "disconnected", disconnected)
	}
}

// memberName is the member's public handle, the first uuid group.
func memberName(id uuid.UUID) string {
	return id.String()[:8]
}
