// Package redis provides the redis client bootstrap and the redis-backed
// chat history store. History is one capped list per room: writes push to
// the tail and trim from the head, reads return the newest entries oldest
// first.
package redis
