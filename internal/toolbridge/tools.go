package toolbridge

import "time"

// cacheableTools are read-only calls whose results may be served from cache
var cacheableTools = map[string]bool{
	"get_user_profile":    true,
	"get_account_status":  true,
	"get_market_status":   true,
	"get_current_time":    true,
	"get_weather":         true,
	"list_tasks":          true,
	"list_watchlists":     true,
	"list_alerts":         true,
	"get_calendar_events": true,
	"search_symbols":      true,
	"web_search":          true,
}

// mutatingTools change backend state; their results are never cached and
// each one invalidates the cached reads it makes stale.
var mutatingTools = map[string][]string{
	"add_task":              {"list_tasks"},
	"complete_task":         {"list_tasks"},
	"delete_task":           {"list_tasks"},
	"add_watchlist_symbol":  {"list_watchlists"},
	"remove_watchlist":      {"list_watchlists"},
	"create_alert":          {"list_alerts"},
	"delete_alert":          {"list_alerts"},
	"create_calendar_event": {"get_calendar_events"},
	"update_user_profile":   {"get_user_profile"},
	"send_sms":              nil,
}

// toolTTLs control how long a cacheable result stays fresh
var toolTTLs = map[string]time.Duration{
	"get_current_time":    5 * time.Second,
	"get_weather":         300 * time.Second,
	"get_account_status":  30 * time.Second,
	"get_market_status":   30 * time.Second,
	"list_tasks":          60 * time.Second,
	"list_watchlists":     60 * time.Second,
	"list_alerts":         60 * time.Second,
	"get_user_profile":    120 * time.Second,
	"get_calendar_events": 60 * time.Second,
}

const defaultTTL = 60 * time.Second

// toolTimeouts bound how long a single backend call may take
var toolTimeouts = map[string]time.Duration{
	"search_symbols":        60 * time.Second,
	"web_search":            45 * time.Second,
	"send_sms":              15 * time.Second,
	"get_weather":           15 * time.Second,
	"create_calendar_event": 20 * time.Second,
}

const defaultTimeout = 30 * time.Second

// IsCacheable reports whether a tool's results may be cached
func IsCacheable(tool string) bool {
	return cacheableTools[tool]
}

// IsMutating reports whether a tool changes backend state
func IsMutating(tool string) bool {
	_, ok := mutatingTools[tool]
	return ok
}

// InvalidatedBy returns the read tools made stale by a mutating tool
func InvalidatedBy(tool string) []string {
	return mutatingTools[tool]
}

// TTLFor returns the cache TTL for a tool
func TTLFor(tool string) time.Duration {
	if ttl, ok := toolTTLs[tool]; ok {
		return ttl
	}
	return defaultTTL
}

// TimeoutFor returns the call timeout for a tool
func TimeoutFor(tool string) time.Duration {
	if t, ok := toolTimeouts[tool]; ok {
		return t
	}
	return defaultTimeout
}
