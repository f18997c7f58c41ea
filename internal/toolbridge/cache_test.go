package toolbridge

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyDeterministic(t *testing.T) {
	a, err := CacheKey("list_tasks", map[string]interface{}{"user": "x", "limit": 5})
	require.NoError(t, err)
	b, err := CacheKey("list_tasks", map[string]interface{}{"limit": 5, "user": "x"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 32) // hex MD5
}

func TestCacheKeyDistinguishesToolAndArgs(t *testing.T) {
	a, _ := CacheKey("list_tasks", map[string]interface{}{"user": "x"})
	b, _ := CacheKey("list_alerts", map[string]interface{}{"user": "x"})
	c, _ := CacheKey("list_tasks", map[string]interface{}{"user": "y"})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCacheGetSet(t *testing.T) {
	c := NewCache(10)
	c.Set("k1", "list_tasks", json.RawMessage(`{"ok":true}`), time.Minute)

	v, ok := c.Get("k1")
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(v))
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10)
	c.Set("k1", "list_tasks", json.RawMessage(`1`), -time.Second)

	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestCacheInvalidateTool(t *testing.T) {
	c := NewCache(10)
	c.Set("k1", "list_tasks", json.RawMessage(`1`), time.Minute)
	c.Set("k2", "list_tasks", json.RawMessage(`2`), time.Minute)
	c.Set("k3", "list_alerts", json.RawMessage(`3`), time.Minute)

	n := c.InvalidateTool("list_tasks")
	assert.Equal(t, 2, n)

	_, ok := c.Get("k1")
	assert.False(t, ok)
	_, ok = c.Get("k2")
	assert.False(t, ok)
	_, ok = c.Get("k3")
	assert.True(t, ok)
}

func TestCacheEvictsExpiredFirst(t *testing.T) {
	c := NewCache(3)
	c.Set("expired", "a", json.RawMessage(`1`), -time.Second)
	c.Set("live1", "a", json.RawMessage(`2`), time.Minute)
	c.Set("live2", "a", json.RawMessage(`3`), time.Minute)

	// At capacity: the expired entry should be swept, not a live one
	c.Set("live3", "a", json.RawMessage(`4`), time.Minute)

	_, ok := c.Get("live1")
	assert.True(t, ok)
	_, ok = c.Get("live2")
	assert.True(t, ok)
	_, ok = c.Get("live3")
	assert.True(t, ok)
}

func TestCacheEvictsOldestInserted(t *testing.T) {
	c := NewCache(3)
	c.Set("first", "a", json.RawMessage(`1`), time.Minute)
	time.Sleep(time.Millisecond)
	c.Set("second", "a", json.RawMessage(`2`), time.Minute)
	time.Sleep(time.Millisecond)
	c.Set("third", "a", json.RawMessage(`3`), time.Minute)
	time.Sleep(time.Millisecond)
	c.Set("fourth", "a", json.RawMessage(`4`), time.Minute)

	_, ok := c.Get("first")
	assert.False(t, ok)
	_, ok = c.Get("fourth")
	assert.True(t, ok)
}

func TestCacheStats(t *testing.T) {
	c := NewCache(10)
	c.Set("k1", "a", json.RawMessage(`1`), time.Minute)

	c.Get("k1")
	c.Get("k1")
	c.Get("missing")

	s := c.Stats()
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, 1, s.Size)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 1e-9)
}

func TestCacheCapacityHeld(t *testing.T) {
	c := NewCache(5)
	for i := 0; i < 20; i++ {
		c.Set(fmt.Sprintf("k%d", i), "a", json.RawMessage(`1`), time.Minute)
	}
	assert.LessOrEqual(t, c.Stats().Size, 5)
}

func TestToolPolicies(t *testing.T) {
	assert.True(t, IsCacheable("list_tasks"))
	assert.False(t, IsCacheable("add_task"))

	assert.True(t, IsMutating("add_task"))
	assert.False(t, IsMutating("list_tasks"))

	assert.Equal(t, []string{"list_tasks"}, InvalidatedBy("add_task"))

	assert.Equal(t, 5*time.Second, TTLFor("get_current_time"))
	assert.Equal(t, 300*time.Second, TTLFor("get_weather"))
	assert.Equal(t, 60*time.Second, TTLFor("unknown_tool"))

	assert.Equal(t, 45*time.Second, TimeoutFor("web_search"))
	assert.Equal(t, 30*time.Second, TimeoutFor("unknown_tool"))
}
