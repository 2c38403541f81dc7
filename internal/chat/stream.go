package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Streaming answers can take a while; the read loop is bounded by the
// caller's context rather than a client timeout.
const streamTimeout = 300 * time.Second

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles used by the chat endpoint.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MCPServer is an optional tool-augmentation endpoint forwarded with
// chat requests. Opaque to this client beyond its URL and auth token.
type MCPServer struct {
	URL  string `json:"url"`
	Auth string `json:"auth,omitempty"`
}

// StreamRequest is the wire payload of a streaming chat request.
type StreamRequest struct {
	RepoURL     string     `json:"repo_url"`
	Messages    []Message  `json:"messages"`
	LocalOllama bool       `json:"local_ollama"`
	MCPServer   *MCPServer `json:"mcp_server,omitempty"`
}

// RequestError is returned when the backend refuses to open a stream.
type RequestError struct {
	StatusCode int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("chat request failed (HTTP %d)", e.StatusCode)
}

// StreamOpener opens a streaming chat completion. Implementations
// return the response body; the caller owns closing it.
type StreamOpener interface {
	OpenStream(ctx context.Context, req StreamRequest) (io.ReadCloser, error)
}

// Opener is the HTTP StreamOpener for the documentation backend's
// chat endpoint. The response is an unframed UTF-8 byte stream.
type Opener struct {
	baseURL    string
	httpClient *http.Client
}

// NewOpener creates an Opener targeting the given backend base URL.
func NewOpener(baseURL string) *Opener {
	return &Opener{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: streamTimeout},
	}
}

// OpenStream posts the chat request and returns the response body for
// incremental reading. Non-success responses are drained, closed, and
// reported as a *RequestError.
func (o *Opener) OpenStream(ctx context.Context, req StreamRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions/stream/v2", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("opening chat stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, &RequestError{StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
