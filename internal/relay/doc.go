// Package relay implements the per-stream fan-out core. Each stream is served
// by one Relay actor that owns a single upstream connection, the registry of
// viewer transports, the cached init frames late joiners need, and the
// reconnect and heartbeat timers. A Manager maps stream names to instances
// process-wide and evicts instances that sit idle with zero viewers.
package relay
