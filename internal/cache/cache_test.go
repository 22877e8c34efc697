package cache

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bobmcallan/box-mcp/internal/common"
	"github.com/bobmcallan/box-mcp/internal/dispatch"
)

func okResponse(body string) *dispatch.Response {
	return &dispatch.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
	}
}

func TestStore_GetSet(t *testing.T) {
	s := NewStore(5*time.Second, 100)

	key := Key("u1", "GET", "https://api.box.com/2.0/files/1", nil)
	s.Set(key, "u1", "/2.0/files/1", okResponse(`{"id":"1"}`))

	got, ok := s.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.StatusCode != http.StatusOK || string(got.Body) != `{"id":"1"}` {
		t.Errorf("unexpected response %d %s", got.StatusCode, got.Body)
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Errorf("unexpected content-type: %s", got.Header.Get("Content-Type"))
	}

	if _, ok := s.Get("nonexistent"); ok {
		t.Error("expected cache miss for nonexistent key")
	}
}

func TestStore_TTLExpiration(t *testing.T) {
	s := NewStore(time.Minute, 100)
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Set("k", "u1", "/2.0/files/1", okResponse("data"))
	if _, ok := s.Get("k"); !ok {
		t.Fatal("expected cache hit before expiry")
	}

	now = now.Add(61 * time.Second)
	if _, ok := s.Get("k"); ok {
		t.Error("expected cache miss after TTL expiration")
	}
	if s.Len() != 0 {
		t.Errorf("expired entry should be removed, %d left", s.Len())
	}
}

func TestStore_MaxEntries(t *testing.T) {
	s := NewStore(time.Minute, 3)
	for i := 0; i < 5; i++ {
		s.Set(fmt.Sprintf("k%d", i), "u1", fmt.Sprintf("/2.0/files/%d", i), okResponse("x"))
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", s.Len())
	}
	for _, k := range []string{"k0", "k1"} {
		if _, ok := s.Get(k); ok {
			t.Errorf("%s should have been evicted", k)
		}
	}
	for _, k := range []string{"k2", "k3", "k4"} {
		if _, ok := s.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
}

func TestStore_OverwriteDoesNotGrow(t *testing.T) {
	s := NewStore(time.Minute, 2)
	s.Set("a", "u1", "/a", okResponse("1"))
	s.Set("b", "u1", "/b", okResponse("2"))
	s.Set("a", "u1", "/a", okResponse("3"))

	if s.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Len())
	}
	got, _ := s.Get("a")
	if string(got.Body) != "3" {
		t.Errorf("expected overwritten body, got %s", got.Body)
	}
}

func TestStore_ZeroCapacityStoresNothing(t *testing.T) {
	s := NewStore(time.Minute, 0)
	s.Set("a", "u1", "/a", okResponse("1"))
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
}

func TestStore_InvalidateScopedToIdentityAndSubtree(t *testing.T) {
	s := NewStore(time.Minute, 100)
	s.Set("a", "u1", "/2.0/files/1", okResponse("x"))
	s.Set("b", "u1", "/2.0/files/1/comments", okResponse("x"))
	s.Set("c", "u1", "/2.0/files/10", okResponse("x"))
	s.Set("d", "u2", "/2.0/files/1", okResponse("x"))

	if n := s.Invalidate("u1", "/2.0/files/1"); n != 2 {
		t.Errorf("expected 2 invalidated, got %d", n)
	}
	for _, k := range []string{"c", "d"} {
		if _, ok := s.Get(k); !ok {
			t.Errorf("%s should survive invalidation", k)
		}
	}
}

func TestStore_ThreadSafety(t *testing.T) {
	s := NewStore(time.Minute, 50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i*j)%80)
				s.Set(key, "u1", "/p/"+key, okResponse("x"))
				s.Get(key)
				if j%25 == 0 {
					s.Invalidate("u1", "/p")
				}
			}
		}(i)
	}
	wg.Wait()
	if s.Len() > 50 {
		t.Errorf("store exceeded capacity: %d", s.Len())
	}
}

type countingTransport struct {
	mu    sync.Mutex
	calls int
	resp  *dispatch.Response
}

func (c *countingTransport) Send(_ context.Context, _ *dispatch.Request) (*dispatch.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.resp != nil {
		return c.resp, nil
	}
	return okResponse(fmt.Sprintf(`{"call":%d}`, c.calls)), nil
}

func getRequest(url, token string) *dispatch.Request {
	return &dispatch.Request{Method: http.MethodGet, URL: url, Header: http.Header{"Authorization": []string{"Bearer " + token}}}
}

func TestTransport_CachesGet(t *testing.T) {
	next := &countingTransport{}
	tr := NewTransport(next, NewStore(time.Minute, 10), common.NewSilentLogger())
	ctx := context.Background()

	first, _ := tr.Send(ctx, getRequest("https://api.box.com/2.0/files/1?fields=name", "a"))
	second, _ := tr.Send(ctx, getRequest("https://api.box.com/2.0/files/1?fields=name", "a"))
	if next.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", next.calls)
	}
	if string(first.Body) != string(second.Body) {
		t.Errorf("expected cached body, got %s and %s", first.Body, second.Body)
	}

	// Different query is a different resource view.
	tr.Send(ctx, getRequest("https://api.box.com/2.0/files/1?fields=size", "a"))
	if next.calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", next.calls)
	}
}

func TestTransport_IsolatesCredentials(t *testing.T) {
	next := &countingTransport{}
	tr := NewTransport(next, NewStore(time.Minute, 10), common.NewSilentLogger())
	ctx := context.Background()

	tr.Send(ctx, getRequest("https://api.box.com/2.0/users/me", "alice"))
	tr.Send(ctx, getRequest("https://api.box.com/2.0/users/me", "bob"))
	if next.calls != 2 {
		t.Errorf("different tokens must not share cache entries, got %d calls", next.calls)
	}
}

func TestTransport_DoesNotCacheErrors(t *testing.T) {
	next := &countingTransport{resp: &dispatch.Response{StatusCode: http.StatusNotFound}}
	tr := NewTransport(next, NewStore(time.Minute, 10), common.NewSilentLogger())
	ctx := context.Background()

	tr.Send(ctx, getRequest("https://api.box.com/2.0/files/404", "a"))
	tr.Send(ctx, getRequest("https://api.box.com/2.0/files/404", "a"))
	if next.calls != 2 {
		t.Errorf("error responses must not be cached, got %d calls", next.calls)
	}
}

func TestTransport_WriteInvalidates(t *testing.T) {
	next := &countingTransport{}
	tr := NewTransport(next, NewStore(time.Minute, 10), common.NewSilentLogger())
	ctx := context.Background()

	tr.Send(ctx, getRequest("https://api.box.com/2.0/files/1", "a"))
	tr.Send(ctx, &dispatch.Request{
		Method: http.MethodPut,
		URL:    "https://api.box.com/2.0/files/1",
		Header: http.Header{"Authorization": []string{"Bearer a"}},
		Body:   []byte(`{"name":"renamed.txt"}`),
	})
	tr.Send(ctx, getRequest("https://api.box.com/2.0/files/1", "a"))

	if next.calls != 3 {
		t.Errorf("expected GET, PUT and a fresh GET upstream, got %d calls", next.calls)
	}
}

func TestTransport_ConditionalRequestsBypass(t *testing.T) {
	next := &countingTransport{}
	tr := NewTransport(next, NewStore(time.Minute, 10), common.NewSilentLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		req := getRequest("https://api.box.com/2.0/files/1", "a")
		req.Header.Set("If-None-Match", `"1"`)
		tr.Send(ctx, req)
	}
	if next.calls != 2 {
		t.Errorf("conditional GETs must reach the server, got %d calls", next.calls)
	}
}

func TestFingerprint(t *testing.T) {
	if fingerprint("") != "" {
		t.Error("empty header should have empty fingerprint")
	}
	a, b := fingerprint("Bearer a"), fingerprint("Bearer b")
	if a == b || len(a) != 16 {
		t.Errorf("unexpected fingerprints %q %q", a, b)
	}
}

func TestTransport_HeaderParametersSplitEntries(t *testing.T) {
	next := &countingTransport{}
	tr := NewTransport(next, NewStore(time.Minute, 10), common.NewSilentLogger())
	ctx := context.Background()

	send := func(boxapi string) *dispatch.Response {
		req := getRequest("https://api.box.com/2.0/folders/0/items", "a")
		req.Header.Set("Boxapi", boxapi)
		resp, err := tr.Send(ctx, req)
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		return resp
	}

	first := send("shared_link=https://app.box.com/s/AAA")
	second := send("shared_link=https://app.box.com/s/BBB&shared_link_password=wrong")
	if next.calls != 2 {
		t.Fatalf("different header parameters must not share an entry, got %d calls", next.calls)
	}
	if string(first.Body) == string(second.Body) {
		t.Errorf("second shared link was served the first link's body %s", second.Body)
	}

	send("shared_link=https://app.box.com/s/AAA")
	if next.calls != 2 {
		t.Errorf("identical headers should hit the cache, got %d calls", next.calls)
	}
}

func TestKey_Headers(t *testing.T) {
	url := "https://api.box.com/2.0/files/1"

	a := http.Header{}
	a.Set("Boxapi", "shared_link=x")
	a.Set("If-Match", `"3"`)
	b := http.Header{}
	b.Set("If-Match", `"3"`)
	b.Set("Boxapi", "shared_link=x")
	if Key("u", "GET", url, a) != Key("u", "GET", url, b) {
		t.Error("header insertion order must not change the key")
	}

	withAgent := a.Clone()
	withAgent.Set("User-Agent", "box-mcp/dev")
	withAgent.Set("Authorization", "Bearer t")
	if Key("u", "GET", url, a) != Key("u", "GET", url, withAgent) {
		t.Error("Authorization and User-Agent must not change the key")
	}

	other := a.Clone()
	other.Set("If-Match", `"4"`)
	if Key("u", "GET", url, a) == Key("u", "GET", url, other) {
		t.Error("different header values must change the key")
	}
	if Key("u", "GET", url, nil) == Key("u", "GET", url, a) {
		t.Error("a header parameter must change the key")
	}
}

func TestTransport_CallersCannotMutateEntries(t *testing.T) {
	next := &countingTransport{}
	tr := NewTransport(next, NewStore(time.Minute, 10), common.NewSilentLogger())
	ctx := context.Background()

	first, _ := tr.Send(ctx, getRequest("https://api.box.com/2.0/files/1", "a"))
	want := string(first.Body)
	first.Body[0] = 'X'
	first.Header.Set("Content-Type", "text/plain")

	second, _ := tr.Send(ctx, getRequest("https://api.box.com/2.0/files/1", "a"))
	if string(second.Body) != want {
		t.Errorf("cached body corrupted: got %s, want %s", second.Body, want)
	}
	if ct := second.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("cached header corrupted: %s", ct)
	}
	second.Body[0] = 'Y'

	third, _ := tr.Send(ctx, getRequest("https://api.box.com/2.0/files/1", "a"))
	if string(third.Body) != want {
		t.Errorf("cached body corrupted by a hit: got %s", third.Body)
	}
}
