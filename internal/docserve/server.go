// Package docserve serves generated documentation from the backend
// over a local HTTP endpoint, so browsers and editors can read the
// Markdown without talking to the backend directly.
package docserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/wikigen/internal/wiki"
)

// prefetchConcurrency bounds parallel file fetches during Prefetch.
const prefetchConcurrency = 4

// Fetcher is the subset of the wiki API the doc server needs.
type Fetcher interface {
	ByRepo(ctx context.Context, owner, repo string) (wiki.RepoDoc, error)
	File(ctx context.Context, path string) (string, error)
}

// Server serves generated documentation files with a TTL cache in
// front of the backend.
type Server struct {
	fetcher Fetcher
	cache   *cache.Cache
	logger  *slog.Logger
}

// New creates a Server caching fetched files for ttl.
func New(fetcher Fetcher, ttl time.Duration) *Server {
	return &Server{
		fetcher: fetcher,
		cache:   cache.New(ttl, 2*ttl),
		logger:  slog.Default(),
	}
}

// Handler returns the HTTP handler for the doc server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/wiki/{owner}/{repo}", s.handleRepo)
	r.Get("/wiki/file/*", s.handleFile)

	return r
}

// handleRepo resolves the documentation set for owner/repo and
// redirects to its index file.
func (s *Server) handleRepo(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")

	doc, err := s.fetcher.ByRepo(r.Context(), owner, repo)
	if err != nil {
		var fetchErr *wiki.StatusFetchError
		if errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound {
			http.Error(w, fmt.Sprintf("no documentation for %s/%s", owner, repo), http.StatusNotFound)
			return
		}
		s.logger.Error("resolving documentation set failed", "owner", owner, "repo", repo, "error", err)
		http.Error(w, "backend unavailable", http.StatusBadGateway)
		return
	}

	target := "/wiki/file/" + strings.Trim(doc.OutputPath, "/") + "/index.md"
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if path == "" {
		http.Error(w, "missing file path", http.StatusBadRequest)
		return
	}

	content, err := s.fetchCached(r.Context(), path)
	if err != nil {
		var fetchErr *wiki.StatusFetchError
		if errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound {
			http.Error(w, "documentation file not found", http.StatusNotFound)
			return
		}
		s.logger.Error("fetching documentation file failed", "path", path, "error", err)
		http.Error(w, "backend unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(content))
}

func (s *Server) fetchCached(ctx context.Context, path string) (string, error) {
	if v, ok := s.cache.Get(path); ok {
		return v.(string), nil
	}
	content, err := s.fetcher.File(ctx, path)
	if err != nil {
		return "", err
	}
	s.cache.SetDefault(path, content)
	return content, nil
}

// Prefetch warms the cache with the given file paths. Fetches run
// concurrently; the first error cancels the rest.
func (s *Server) Prefetch(ctx context.Context, paths []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchConcurrency)

	for _, path := range paths {
		g.Go(func() error {
			if _, err := s.fetchCached(ctx, path); err != nil {
				return fmt.Errorf("prefetching %s: %w", path, err)
			}
			return nil
		})
	}
	return g.Wait()
}
