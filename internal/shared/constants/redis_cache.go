package constants

import (
	"fmt"
	"net/url"
	"time"
)

// Redis keys used by the booking client and gateway.
// Pattern: eventhub:{module}:{operation}:{identifier}:{params?}

// ================== CACHE TTL DURATIONS ==================

const (
	TTL_EVENTS_LIST     = 2 * time.Minute // default listing staleness window
	TTL_EVENTS_LIST_MAX = 5 * time.Minute // listings are never cached longer than this
)

// ================== REDIS KEY PREFIXES ==================

const (
	CACHE_PREFIX = "eventhub"
)

// ================== EVENTS MODULE ==================

const (
	CACHE_KEY_EVENTS_LIST = CACHE_PREFIX + ":events:list" // + :page:X:size:Y:q:Z
	PATTERN_EVENTS_ALL    = CACHE_PREFIX + ":events:*"
)

// ================== GATEWAY ==================

const (
	RATE_LIMIT_PREFIX = CACHE_PREFIX + ":rate_limit:" // + type:ip
)

// ================== HELPER FUNCTIONS ==================

// BuildEventListKey constructs the listing key. Filters are folded into an
// encoded query so distinct searches never share an entry.
// Example: BuildEventListKey(0, 20, url.Values{"city": {"Oslo"}}) -> "eventhub:events:list:page:0:size:20:q:city=Oslo"
func BuildEventListKey(page, size int, filters url.Values) string {
	key := fmt.Sprintf("%s:page:%d:size:%d", CACHE_KEY_EVENTS_LIST, page, size)
	if len(filters) > 0 {
		key += ":q:" + filters.Encode()
	}
	return key
}

func BuildRateLimitKey(limitType, clientIP string) string {
	return RATE_LIMIT_PREFIX + limitType + ":" + clientIP
}

// ClampEventsTTL bounds a configured listing TTL
func ClampEventsTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return TTL_EVENTS_LIST
	}
	if ttl > TTL_EVENTS_LIST_MAX {
		return TTL_EVENTS_LIST_MAX
	}
	return ttl
}
