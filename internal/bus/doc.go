// Package bus exchanges lightweight events with the co-located renderer.
//
// Every event travels on a channel named "{prefix}ES{Kind}" and carries a small
// msgpack envelope with its payload and an optional correlation token. Messages
// with an empty body are read the legacy way, with the payload appended to the
// channel name after a dot.
//
// Transports are pluggable: [RedisTransport] uses Redis pub/sub and
// [MemoryTransport] stays inside one process.
package bus
