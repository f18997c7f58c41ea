package toolbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/config"
)

// retryableStatus is the set of HTTP statuses worth another attempt
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// ToolError is a non-retryable failure reported by the companion service
type ToolError struct {
	Tool       string
	StatusCode int
	Body       string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed with status %d: %s", e.Tool, e.StatusCode, e.Body)
}

// Bridge is the HTTP client to the companion tool service. Read-only tools
// are cached per-tool TTL; mutating tools punch out the cached reads they
// invalidate. All calls retry transient failures with capped backoff.
type Bridge struct {
	baseURL      string
	maxRetries   int
	httpClient   *http.Client
	toolCache    *Cache
	contextCache *Cache
	logger       zerolog.Logger
}

// NewBridge creates a bridge to the companion service
func NewBridge(cfg config.BridgeConfig, logger zerolog.Logger) *Bridge {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Bridge{
		baseURL:      cfg.BaseURL,
		maxRetries:   maxRetries,
		httpClient:   &http.Client{},
		toolCache:    NewCache(cfg.CacheCapacity),
		contextCache: NewCache(cfg.ContextCacheCapacity),
		logger:       logger,
	}
}

// CallTool invokes a named tool with arguments. Cacheable tools are served
// from cache within their TTL; mutating tools always hit the backend and then
// invalidate their related reads.
func (b *Bridge) CallTool(ctx context.Context, tool string, args map[string]interface{}) (json.RawMessage, error) {
	key, err := CacheKey(tool, args)
	if err != nil {
		return nil, err
	}

	if IsCacheable(tool) {
		if value, ok := b.toolCache.Get(key); ok {
			b.logger.Debug().Str("tool", tool).Msg("Tool cache hit")
			return value, nil
		}
	}

	value, err := b.call(ctx, tool, args)
	if err != nil {
		return nil, err
	}

	if IsCacheable(tool) {
		b.toolCache.Set(key, tool, value, TTLFor(tool))
	}

	if IsMutating(tool) {
		for _, related := range InvalidatedBy(tool) {
			if n := b.toolCache.InvalidateTool(related); n > 0 {
				b.logger.Debug().
					Str("tool", tool).
					Str("invalidated", related).
					Int("entries", n).
					Msg("Cache invalidated by mutating tool")
			}
		}
	}

	return value, nil
}

// FetchContext retrieves a named context document through the context cache
func (b *Bridge) FetchContext(ctx context.Context, contextID string) (json.RawMessage, error) {
	key, err := CacheKey("context", map[string]interface{}{"id": contextID})
	if err != nil {
		return nil, err
	}
	if value, ok := b.contextCache.Get(key); ok {
		return value, nil
	}

	value, err := b.request(ctx, http.MethodGet, b.baseURL+"/context/"+contextID, nil, defaultTimeout, "context")
	if err != nil {
		return nil, err
	}
	b.contextCache.Set(key, "context", value, defaultTTL)
	return value, nil
}

// call performs the tool invocation with retries
func (b *Bridge) call(ctx context.Context, tool string, args map[string]interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args for %s: %w", tool, err)
	}
	return b.request(ctx, http.MethodPost, b.baseURL+"/tools/"+tool, body, TimeoutFor(tool), tool)
}

// request runs one HTTP call with up to maxRetries attempts. Backoff between
// attempts is min(0.5*2^attempt, 5) seconds. A non-retryable status fails
// immediately.
func (b *Bridge) request(ctx context.Context, method, url string, body []byte, timeout time.Duration, tool string) (json.RawMessage, error) {
	var lastErr error

	for attempt := 0; attempt < b.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Min(0.5*math.Pow(2, float64(attempt)), 5) * float64(time.Second))
			b.logger.Debug().
				Str("tool", tool).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying tool call")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		value, retryable, err := b.attempt(ctx, method, url, body, timeout, tool)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("tool %s failed after %d attempts: %w", tool, b.maxRetries, lastErr)
}

func (b *Bridge) attempt(ctx context.Context, method, url string, body []byte, timeout time.Duration, tool string) (json.RawMessage, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, url, reader)
	if err != nil {
		return nil, false, fmt.Errorf("create request for %s: %w", tool, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		// Timeouts and connect errors are transient
		return nil, true, fmt.Errorf("call %s: %w", tool, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read %s response: %w", tool, err)
	}

	if resp.StatusCode != http.StatusOK {
		terr := &ToolError{Tool: tool, StatusCode: resp.StatusCode, Body: string(raw)}
		return nil, retryableStatus[resp.StatusCode], terr
	}

	return json.RawMessage(raw), false, nil
}

// Stats returns the tool cache statistics
func (b *Bridge) Stats() Stats {
	return b.toolCache.Stats()
}

// ContextStats returns the context cache statistics
func (b *Bridge) ContextStats() Stats {
	return b.contextCache.Stats()
}
