package domain

import (
	"context"
	"fmt"
	"time"
)

// --- Media frames ---

// FrameKind is the one-byte discriminator at the head of every media frame
// received from the SFU. The convention is fixed by the upstream protocol.
type FrameKind byte

const (
	FrameVideo FrameKind = 0
	FrameAudio FrameKind = 1
)

func (k FrameKind) String() string {
	switch k {
	case FrameVideo:
		return "video"
	case FrameAudio:
		return "audio"
	default:
		return fmt.Sprintf("unknown(%d)", byte(k))
	}
}

// FrameKindOf inspects the leading discriminator byte of a media frame.
// ok is false for empty frames and unknown discriminators; such frames are
// still forwarded verbatim, they just never enter the init cache.
func FrameKindOf(frame []byte) (FrameKind, bool) {
	if len(frame) == 0 {
		return 0, false
	}
	kind := FrameKind(frame[0])
	if kind != FrameVideo && kind != FrameAudio {
		return kind, false
	}
	return kind, true
}

// --- Status messages ---

// StatusMessage is the text control frame broadcast to viewers. The JSON
// field names are part of the viewer-facing protocol and must not change.
type StatusMessage struct {
	Type             string `json:"type"`
	Message          string `json:"message"`
	Timestamp        string `json:"timestamp"`
	IsConnectedToSFU bool   `json:"isConnectedToSFU"`
}

// NewStatusMessage builds a status record stamped with now in RFC 3339 UTC.
func NewStatusMessage(message string, connected bool, now time.Time) StatusMessage {
	return StatusMessage{
		Type:             "status",
		Message:          message,
		Timestamp:        now.UTC().Format(time.RFC3339),
		IsConnectedToSFU: connected,
	}
}

// --- Health ---

// StreamSnapshot is a pure read of one relay instance's state, used by the
// health endpoint. Producing it has no side effects.
type StreamSnapshot struct {
	StreamID       string `json:"streamId"`
	ClientCount    int    `json:"clientCount"`
	ConnectedToSFU bool   `json:"connectedToSFU"`
}

// --- Viewer transport ---

// ClientTransport is one accepted viewer connection as the actors see it:
// a non-blocking send surface plus teardown. Send methods must fail fast
// (never block the caller) and return an error once the connection is dead
// or its outbound buffer is full.
type ClientTransport interface {
	SendText(data []byte) error
	SendBinary(data []byte) error
	Close(reason string)
}

// --- Upstream connector ---

// UpstreamConn is one connected upstream byte-stream session.
type UpstreamConn interface {
	// ReadFrame blocks until the next binary frame arrives, the peer closes,
	// or the connection fails.
	ReadFrame() ([]byte, error)
	Close() error
}

// UpstreamDialer opens a bidirectional byte-stream connection to a named
// address. Implementations must respect ctx cancellation during the dial.
type UpstreamDialer interface {
	DialUpstream(ctx context.Context, addr string) (UpstreamConn, error)
}
