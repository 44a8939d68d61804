package redisstream

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trickstertwo/xmal"
)

// Stream entry field names.
const (
	fieldID         = "id"
	fieldTo         = "to"
	fieldFrom       = "from"
	fieldPayload    = "payload"
	fieldProducedAt = "producedAt" // unix nanoseconds
	fieldMetaPrefix = "meta:"
)

// entryValues lays an envelope out as stream entry fields. The payload is
// stored as raw bytes.
func entryValues(env *xmal.Envelope) map[string]any {
	vals := make(map[string]any, 5+len(env.Metadata))
	if env.ID != "" {
		vals[fieldID] = env.ID
	}
	vals[fieldTo] = env.To
	vals[fieldFrom] = env.From
	vals[fieldPayload] = env.Payload
	if !env.ProducedAt.IsZero() {
		vals[fieldProducedAt] = env.ProducedAt.UnixNano()
	}
	for k, v := range env.Metadata {
		vals[fieldMetaPrefix+k] = v
	}
	return vals
}

// decodeEnvelope rebuilds an envelope from entry fields. The envelope id
// falls back to the entry id when the producer set none.
func decodeEnvelope(entryID string, vals map[string]any) *xmal.Envelope {
	env := &xmal.Envelope{
		ID:       text(vals[fieldID]),
		To:       text(vals[fieldTo]),
		From:     text(vals[fieldFrom]),
		Metadata: make(map[string]string),
	}
	if env.ID == "" {
		env.ID = entryID
	}
	switch p := vals[fieldPayload].(type) {
	case []byte:
		env.Payload = p
	case string:
		env.Payload = []byte(p)
	}
	if ns, ok := unixNanos(vals[fieldProducedAt]); ok && ns > 0 {
		env.ProducedAt = time.Unix(0, ns)
	}
	for k, v := range vals {
		if key, ok := strings.CutPrefix(k, fieldMetaPrefix); ok {
			env.Metadata[key] = text(v)
		}
	}
	return env
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

func unixNanos(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string, []byte:
		i, err := strconv.ParseInt(text(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}
