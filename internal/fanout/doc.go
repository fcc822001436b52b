// Package fanout implements the connection registry and broadcast dispatcher
// shared by the stream relay and the chat rooms.
//
// A Registry holds the live viewer transports of one stream or room, keyed by
// client id. A Dispatcher pushes one payload to every member, removing members
// whose transport fails without aborting delivery to the rest. Neither type is
// safe for concurrent use: each instance is owned by exactly one actor
// goroutine, which is where all mutation happens.
package fanout
