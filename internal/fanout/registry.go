package fanout

import (
	"github.com/google/uuid"

	"github.com/Hoangbim/streamcast/internal/domain"
)

// Registry is the live set of client connections for one stream or room.
// Ids are caller-generated and assumed unique; Add registers unconditionally.
type Registry struct {
	members map[uuid.UUID]domain.ClientTransport
}

func NewRegistry() *Registry {
	return &Registry{members: make(map[uuid.UUID]domain.ClientTransport)}
}

// Add registers a transport under id, replacing any previous entry.
func (r *Registry) Add(id uuid.UUID, transport domain.ClientTransport) {
	r.members[id] = transport
}

// Remove deletes id if present and reports whether it was registered.
// Removing an absent id is a no-op.
func (r *Registry) Remove(id uuid.UUID) bool {
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

// Get returns the transport registered under id.
func (r *Registry) Get(id uuid.UUID) (domain.ClientTransport, bool) {
	t, ok := r.members[id]
	return t, ok
}

func (r *Registry) Size() int {
	return len(r.members)
}

// ForEach applies fn to every member registered at call time. It iterates a
// snapshot, so fn may remove the member it is visiting (or any other) without
// corrupting the walk: members still registered when their turn comes are
// visited exactly once, and members fn already removed are skipped.
func (r *Registry) ForEach(fn func(id uuid.UUID, transport domain.ClientTransport)) {
	ids := make([]uuid.UUID, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if t, ok := r.members[id]; ok {
			fn(id, t)
		}
	}
}
