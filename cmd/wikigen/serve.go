package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/wikigen/internal/docserve"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve generated documentation over HTTP",
	Long: `Serve generated documentation over HTTP.

Pages are fetched from the backend on demand and cached locally for
the configured TTL. Browse http://<addr>/wiki/<owner>/<repo>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := backendClient()
		if err != nil {
			return err
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Serve.Addr
		}
		prefetch, _ := cmd.Flags().GetStringSlice("prefetch")

		srv := docserve.New(client, cfg.Serve.CacheTTLDuration())

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(prefetch) > 0 {
			go func() {
				paths, err := resolvePrefetch(ctx, client, prefetch)
				if err != nil {
					printWarning("prefetch: %v", err)
					return
				}
				if err := srv.Prefetch(ctx, paths); err != nil {
					printWarning("prefetch: %v", err)
				}
			}()
		}

		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			printStep("Serving documentation on http://%s", addr)
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		printStep("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config)")
	serveCmd.Flags().StringSlice("prefetch", nil, "owner/repo pairs to warm the cache with, e.g. acme/widget")
}

// resolvePrefetch maps owner/repo references to the index file of each
// repository's documentation set.
func resolvePrefetch(ctx context.Context, fetcher docserve.Fetcher, refs []string) ([]string, error) {
	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		owner, repo, err := splitRepoRef(ref)
		if err != nil {
			return nil, err
		}
		doc, err := fetcher.ByRepo(ctx, owner, repo)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", ref, err)
		}
		paths = append(paths, strings.Trim(doc.OutputPath, "/")+"/index.md")
	}
	return paths, nil
}

// splitRepoRef splits "owner/repo" for prefetch and read commands.
func splitRepoRef(ref string) (owner, repo string, err error) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository reference %q, want owner/repo", ref)
	}
	return parts[0], parts[1], nil
}
