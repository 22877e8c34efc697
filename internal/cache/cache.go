// Package cache holds a short-lived GET response cache in front of a dispatch.Transport.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bobmcallan/box-mcp/internal/common"
	"github.com/bobmcallan/box-mcp/internal/dispatch"
)

// entry wraps a cached response with expiry and insertion order tracking.
type entry struct {
	resp      *dispatch.Response
	path      string
	identity  string
	expiry    time.Time
	insertIdx int64
}

// Store is a TTL cache with a fixed capacity. The oldest entry is evicted
// first. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	items      map[string]entry
	ttl        time.Duration
	maxEntries int
	nextIdx    int64
	now        func() time.Time
}

// NewStore creates a Store. A maxEntries of zero or less stores nothing.
func NewStore(ttl time.Duration, maxEntries int) *Store {
	return &Store{
		items:      make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Key builds a cache key from the caller identity, method, full URL and
// request headers. Authorization is covered by identity and User-Agent is
// constant per process, so both are left out. The rest are included in
// canonical sorted order.
func Key(identity, method, rawURL string, header http.Header) string {
	var b strings.Builder
	b.WriteString(identity)
	b.WriteByte(0)
	b.WriteString(method)
	b.WriteByte(0)
	b.WriteString(rawURL)

	names := make([]string, 0, len(header))
	for name := range header {
		canonical := http.CanonicalHeaderKey(name)
		if canonical == "Authorization" || canonical == "User-Agent" {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return http.CanonicalHeaderKey(names[i]) < http.CanonicalHeaderKey(names[j])
	})
	for _, name := range names {
		b.WriteByte(0)
		b.WriteString(http.CanonicalHeaderKey(name))
		b.WriteByte('=')
		b.WriteString(strings.Join(header[name], ","))
	}
	return b.String()
}

// Get returns a cached response if found and not expired.
func (s *Store) Get(key string) (*dispatch.Response, bool) {
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if s.now().After(e.expiry) {
		s.mu.Lock()
		if e2, ok2 := s.items[key]; ok2 && s.now().After(e2.expiry) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return cloneResponse(e.resp), true
}

// Set stores a response. path and identity are kept for invalidation.
func (s *Store) Set(key, identity, path string, resp *dispatch.Response) {
	if s.maxEntries <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{
		resp:      cloneResponse(resp),
		path:      path,
		identity:  identity,
		expiry:    s.now().Add(s.ttl),
		insertIdx: s.nextIdx,
	}
	s.nextIdx++

	if _, exists := s.items[key]; exists {
		s.items[key] = e
		return
	}
	if len(s.items) >= s.maxEntries {
		s.evictOldest()
	}
	s.items[key] = e
}

// Invalidate drops every entry for identity whose path equals path or lies
// beneath it.
func (s *Store) Invalidate(identity, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.items {
		if e.identity != identity {
			continue
		}
		if e.path == path || strings.HasPrefix(e.path, strings.TrimRight(path, "/")+"/") {
			delete(s.items, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// evictOldest removes the entry with the lowest insertIdx. Must be called with mu held.
func (s *Store) evictOldest() {
	var oldestKey string
	var oldestIdx int64 = -1

	for key, e := range s.items {
		if oldestIdx == -1 || e.insertIdx < oldestIdx {
			oldestIdx = e.insertIdx
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(s.items, oldestKey)
	}
}

// Transport serves repeated GETs from a Store and forwards everything else.
// A successful write through it invalidates cached reads of the same
// resource and its children for the same caller.
type Transport struct {
	next   dispatch.Transport
	store  *Store
	logger *common.Logger
}

// NewTransport wraps next with a response cache.
func NewTransport(next dispatch.Transport, store *Store, logger *common.Logger) *Transport {
	return &Transport{next: next, store: store, logger: logger}
}

// Send implements dispatch.Transport.
func (t *Transport) Send(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	identity := fingerprint(req.Header.Get("Authorization"))
	path := pathOf(req.URL)

	if req.Method != http.MethodGet {
		resp, err := t.next.Send(ctx, req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if n := t.store.Invalidate(identity, path); n > 0 {
				t.logger.Debug().Str("path", path).Int("entries", n).Msg("cache invalidated")
			}
		}
		return resp, err
	}

	// Conditional requests expect the server to answer.
	if req.Header.Get("If-None-Match") != "" {
		return t.next.Send(ctx, req)
	}

	key := Key(identity, req.Method, req.URL, req.Header)
	if resp, ok := t.store.Get(key); ok {
		t.logger.Debug().Str("path", path).Msg("cache hit")
		return resp, nil
	}

	resp, err := t.next.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		t.store.Set(key, identity, path, resp)
	}
	return resp, nil
}

// cloneResponse copies resp so callers never share the stored header map or body.
func cloneResponse(resp *dispatch.Response) *dispatch.Response {
	return &dispatch.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       bytes.Clone(resp.Body),
	}
}

// fingerprint keeps raw credentials out of cache keys.
func fingerprint(auth string) string {
	if auth == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(auth))
	return hex.EncodeToString(sum[:8])
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexByte(rawURL, '?'); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}
	return u.Path
}
