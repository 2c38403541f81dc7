package wiki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// StatusFetchError is returned when the backend answers a status or
// content request with a non-success HTTP code. Polling callers treat
// it as transient and retry on the next cycle.
type StatusFetchError struct {
	StatusCode int
	Body       string
}

func (e *StatusFetchError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Client communicates with the documentation generation backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client targeting the given backend base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// NewClientWithHTTPClient creates a Client with a caller-supplied
// http.Client (used by tests and by callers that tune timeouts).
func NewClientWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

// Detail fetches the detailed status of a generation job, including
// its stage list.
func (c *Client) Detail(ctx context.Context, requestID string) (*JobStatus, error) {
	path := "/api/v2/documentation/detail/" + url.PathEscape(requestID)
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fetchError(resp)
	}

	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decoding job status: %w", err)
	}
	return &status, nil
}

// Generate submits a documentation generation request. With Force set
// the backend restarts the job even if a completed run exists.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("marshaling generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/documentation/generate", bytes.NewReader(body))
	if err != nil {
		return GenerateResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("requesting generation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GenerateResponse{}, fetchError(resp)
	}

	var ack GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return GenerateResponse{}, fmt.Errorf("decoding generate response: %w", err)
	}
	return ack, nil
}

// ByRepo resolves the output path of the generated documentation set
// for owner/repo.
func (c *Client) ByRepo(ctx context.Context, owner, repo string) (RepoDoc, error) {
	path := fmt.Sprintf("/api/v2/documentation/by-repo/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	resp, err := c.get(ctx, path)
	if err != nil {
		return RepoDoc{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RepoDoc{}, fetchError(resp)
	}

	var doc RepoDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return RepoDoc{}, fmt.Errorf("decoding repo doc: %w", err)
	}
	return doc, nil
}

// File fetches one generated documentation file as raw Markdown.
func (c *Client) File(ctx context.Context, path string) (string, error) {
	resp, err := c.get(ctx, "/api/v2/documentation/file/"+strings.TrimLeft(path, "/"))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fetchError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading documentation file: %w", err)
	}
	return string(data), nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	return resp, nil
}

func fetchError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return &StatusFetchError{StatusCode: resp.StatusCode}
	}
	return &StatusFetchError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
