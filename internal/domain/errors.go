package domain

import "errors"

var (
	ErrRelayStopped    = errors.New("relay instance stopped")
	ErrRoomStopped     = errors.New("chat room stopped")
	ErrSendBufferFull  = errors.New("client send buffer full")
	ErrTransportClosed = errors.New("client transport closed")
)
