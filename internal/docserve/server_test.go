package docserve

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/wikigen/internal/wiki"
)

var ctx = context.Background()

type fakeFetcher struct {
	mu        sync.Mutex
	files     map[string]string
	repos     map[string]string // "owner/repo" -> output path
	fileCalls int
}

func (f *fakeFetcher) ByRepo(ctx context.Context, owner, repo string) (wiki.RepoDoc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path, ok := f.repos[owner+"/"+repo]; ok {
		return wiki.RepoDoc{OutputPath: path}, nil
	}
	return wiki.RepoDoc{}, &wiki.StatusFetchError{StatusCode: http.StatusNotFound}
}

func (f *fakeFetcher) File(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileCalls++
	if content, ok := f.files[path]; ok {
		return content, nil
	}
	return "", &wiki.StatusFetchError{StatusCode: http.StatusNotFound}
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fileCalls
}

func newTestServer(t *testing.T, fetcher *fakeFetcher) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(fetcher, time.Minute).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, string(body)
}

func TestServeFile(t *testing.T) {
	fetcher := &fakeFetcher{
		files: map[string]string{"acme/widget/docs/index.md": "# Widget\n"},
	}
	srv := newTestServer(t, fetcher)

	resp, body := get(t, srv.URL+"/wiki/file/acme/widget/docs/index.md")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body != "# Widget\n" {
		t.Errorf("body = %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/markdown; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
}

func TestServeFileCaches(t *testing.T) {
	fetcher := &fakeFetcher{
		files: map[string]string{"a/index.md": "# A\n"},
	}
	srv := newTestServer(t, fetcher)

	for range 3 {
		resp, _ := get(t, srv.URL+"/wiki/file/a/index.md")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	}
	if fetcher.calls() != 1 {
		t.Errorf("backend fetches = %d, want 1 (cached)", fetcher.calls())
	}
}

func TestServeFileNotFound(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{})

	resp, _ := get(t, srv.URL+"/wiki/file/missing.md")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRepoRedirect(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: map[string]string{"acme/widget": "acme/widget/docs"},
		files: map[string]string{"acme/widget/docs/index.md": "# Widget\n"},
	}
	srv := newTestServer(t, fetcher)

	// The redirect is followed by the default client.
	resp, body := get(t, srv.URL+"/wiki/acme/widget")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body != "# Widget\n" {
		t.Errorf("body = %q", body)
	}
}

func TestRepoNotFound(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{})

	resp, _ := get(t, srv.URL+"/wiki/acme/unknown")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPrefetchWarmsCache(t *testing.T) {
	fetcher := &fakeFetcher{
		files: map[string]string{
			"a/1.md": "one",
			"a/2.md": "two",
			"a/3.md": "three",
		},
	}
	server := New(fetcher, time.Minute)

	paths := []string{"a/1.md", "a/2.md", "a/3.md"}
	if err := server.Prefetch(ctx, paths); err != nil {
		t.Fatalf("Prefetch failed: %v", err)
	}
	if fetcher.calls() != 3 {
		t.Fatalf("backend fetches = %d, want 3", fetcher.calls())
	}

	// Cached; serving them causes no further backend traffic.
	for _, path := range paths {
		if _, err := server.fetchCached(ctx, path); err != nil {
			t.Errorf("fetchCached(%s) failed: %v", path, err)
		}
	}
	if fetcher.calls() != 3 {
		t.Errorf("backend fetches after cache hits = %d, want 3", fetcher.calls())
	}
}

func TestPrefetchPropagatesErrors(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string]string{"a/1.md": "one"}}
	server := New(fetcher, time.Minute)

	if err := server.Prefetch(ctx, []string{"a/1.md", "missing.md"}); err == nil {
		t.Error("expected error for missing file")
	}
}
