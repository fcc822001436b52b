package fanout

import (
	"github.com/google/uuid"

	"github.com/Hoangbim/streamcast/internal/domain"
)

// Dispatcher fans a message out to every member of a registry. A member whose
// transport rejects the send is evicted: removed from the registry and its
// transport closed. One bad connection never blocks or disconnects the rest.
type Dispatcher struct {
	registry *Registry
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// BroadcastBinary sends frame to all members and returns the ids evicted for
// send failures. The caller decides what to log or count per eviction.
func (d *Dispatcher) BroadcastBinary(frame []byte) []uuid.UUID {
	return d.broadcast(func(t domain.ClientTransport) error {
		return t.SendBinary(frame)
	})
}

// BroadcastText sends data to all members and returns the ids evicted for
// send failures.
func (d *Dispatcher) BroadcastText(data []byte) []uuid.UUID {
	return d.broadcast(func(t domain.ClientTransport) error {
		return t.SendText(data)
	})
}

func (d *Dispatcher) broadcast(send func(domain.ClientTransport) error) []uuid.UUID {
	var evicted []uuid.UUID
	d.registry.ForEach(func(id uuid.UUID, transport domain.ClientTransport) {
		if err := send(transport); err != nil {
			d.registry.Remove(id)
			transport.Close("send failed")
			evicted = append(evicted, id)
		}
	})
	return evicted
}
