// Package redisstream provides a Redis Streams transport for xmal.
//
// Every endpoint owns one stream, StreamPrefix + endpoint URI, read by a
// consumer group named after the URI. Entries are handed to workers by a
// hash of the sender URI, so the replies of one interaction keep their
// order. With StrictDestinations, publishing to a stream that no endpoint
// has created fails with xmal.ErrDestinationUnknown.
//
// Transport name: "redis-streams"
//
// Config keys:
//   - addr: "host:port" (default "127.0.0.1:6379")
//   - stream_prefix: stream key prefix (default "xmal:")
//   - strict: reject unknown destinations (default true)
//   - group: override the consumer group (default: endpoint URI)
//   - consumer: consumer name (default "xmal-<host>-<pid>")
//   - concurrency: number of workers (default 8)
//   - batch_size: XREADGROUP COUNT (default 128)
//   - block: XREADGROUP BLOCK duration (default 5s)
//   - auto_create: create group/stream if missing (default true)
//   - auto_delete_on_ack: XDEL after XACK (default false)
//   - dead_letter: stream name to write nacked entries to (optional)
//   - max_len_approx: trim streams to about this many entries (optional)
//   - claim_min_idle: take over entries pending this long, "0s" disables (default 1m)
//   - claim_interval: how often to look for such entries (default 15s)
//   - claim_batch: XAUTOCLAIM COUNT (default 128)
//
// Example:
//
//	ep, _ := xmal.NewEndpointBuilder().
//		WithURI("malmem://ground/tm").
//		WithTransport(redisstream.TransportName, map[string]any{
//			"addr":        "localhost:6379",
//			"concurrency": 16,
//			"dead_letter": "xmal:dlq",
//		}).
//		Build()
package redisstream
