package relay

import "github.com/Hoangbim/streamcast/internal/domain"

// initCache holds the first frame of each media kind seen on the upstream
// link. Decoders need these before later payloads make sense, so the relay
// replays them to late joiners. Slots are write-once for the life of the
// instance; going idle and regaining viewers does not reset them.
type initCache struct {
	slots map[domain.FrameKind][]byte
	order []domain.FrameKind
}

func newInitCache() *initCache {
	return &initCache{slots: make(map[domain.FrameKind][]byte, 2)}
}

// Store caches frame under kind if the slot is still empty and reports
// whether it did. A populated slot is never overwritten.
func (c *initCache) Store(kind domain.FrameKind, frame []byte) bool {
	if _, taken := c.slots[kind]; taken {
		return false
	}
	c.slots[kind] = frame
	c.order = append(c.order, kind)
	return true
}

// Complete reports whether both the video and the audio slot are populated.
func (c *initCache) Complete() bool {
	return len(c.slots) == 2
}

// Frames returns the cached frames in the order their slots were populated.
func (c *initCache) Frames() [][]byte {
	frames := make([][]byte, 0, len(c.order))
	for _, kind := range c.order {
		frames = append(frames, c.slots[kind])
	}
	return frames
}

func (c *initCache) Len() int {
	return len(c.slots)
}
