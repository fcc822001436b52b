// Package chat hosts per-stream chat rooms next to the media relay. A Room
// is an actor over the shared fanout registry: one goroutine owns membership,
// history writes, and broadcasts, so a joining member replays everything
// persisted before its join and sees everything broadcast after it, with no
// gap and no duplicate in between. Rooms live exactly as long as they have
// members; history outlives them in the store.
package chat
