package redis

import "strings"

const (
	keyNamespace      = "mkt"
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "ratelimit"
)

// keyspace builds every key and channel name the engine writes, so all of
// them share the mkt: namespace.
type keyspace struct {
	channelPrefix string
}

func (keyspace) IdempotencyKey(scope, id string) string {
	return buildKey(idempotencyPrefix, scope, id)
}

func (keyspace) RateLimitKey(scope, id string) string {
	return buildKey(rateLimitPrefix, scope, id)
}

// ChannelKey prefixes a realtime topic ("user:<id>") with the configured
// channel prefix.
func (k keyspace) ChannelKey(channel string) string {
	prefix := strings.TrimSpace(k.channelPrefix)
	if prefix == "" {
		return channel
	}
	return prefix + ":" + channel
}

// buildKey joins parts under the namespace, skipping blank ones.
func buildKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
