// Package natscore provides a NATS core transport for xmal.
//
// Each endpoint URI maps to one subject, SubjectPrefix followed by the URI
// with NATS-reserved characters replaced by '_'. Endpoints join the queue
// group named after their URI, so several processes serving one URI share
// its traffic. Envelope fields travel as message headers (Xmal-Id, Xmal-From,
// Xmal-Meta-*), the encoded MAL message is the data.
//
// Transport name: "nats"
//
// Config keys:
//   - url: server URL (default "nats://127.0.0.1:4222")
//   - subject_prefix: subject prefix (default "xmal.")
//   - strict: publish as request so unknown URIs fail (default true)
//   - publish_timeout: strict publish wait (default 2s)
//   - concurrency: workers per subscription (default 4)
//   - buffer_size: per-worker queue (default 256)
//   - max_redeliveries: local requeues on Nack (default 3)
//   - name, username, password, token, max_reconnects, reconnect_wait, timeout
package natscore
