package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

var ctx = context.Background()

// chunkReader yields one scripted chunk per Read call, then finalErr
// (io.EOF by default). A gate channel blocks reads until closed.
type chunkReader struct {
	chunks   []string
	i        int
	finalErr error
	gate     chan struct{}
	closed   bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.gate != nil {
		<-r.gate
	}
	if r.i >= len(r.chunks) {
		if r.finalErr != nil {
			return 0, r.finalErr
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.i])
	r.i++
	return n, nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	return nil
}

type fakeOpener struct {
	mu       sync.Mutex
	requests []StreamRequest
	chunks   []string
	openErr  error
	readErr  error
	gate     chan struct{}
	readers  []*chunkReader
}

func (f *fakeOpener) OpenStream(ctx context.Context, req StreamRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.openErr != nil {
		return nil, f.openErr
	}
	r := &chunkReader{chunks: f.chunks, finalErr: f.readErr, gate: f.gate}
	f.readers = append(f.readers, r)
	return r, nil
}

func (f *fakeOpener) openCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestSendAssemblesChunksInOrder(t *testing.T) {
	opener := &fakeOpener{chunks: []string{"Hel", "lo, ", "world"}}
	conv := NewConversation(opener, "https://github.com/acme/widget")

	if err := conv.Send(ctx, "What does this repo do?", SendOptions{}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	messages := conv.Messages()
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Role != RoleUser || messages[0].Content != "What does this repo do?" {
		t.Errorf("user message = %+v", messages[0])
	}
	if messages[1].Role != RoleAssistant || messages[1].Content != "Hello, world" {
		t.Errorf("assistant message = %+v", messages[1])
	}
	if !opener.readers[0].closed {
		t.Error("stream reader was not released")
	}
}

func TestSendBlankTextIsNoOp(t *testing.T) {
	opener := &fakeOpener{chunks: []string{"hi"}}
	conv := NewConversation(opener, "repo")

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := conv.Send(ctx, text, SendOptions{}); err != nil {
			t.Errorf("Send(%q) returned error: %v", text, err)
		}
	}

	if conv.Len() != 0 {
		t.Errorf("conversation length = %d, want 0", conv.Len())
	}
	if opener.openCalls() != 0 {
		t.Errorf("open calls = %d, want 0", opener.openCalls())
	}
}

func TestSendWhileInFlightIsNoOp(t *testing.T) {
	gate := make(chan struct{})
	opener := &fakeOpener{chunks: []string{"answer"}, gate: gate}
	conv := NewConversation(opener, "repo")

	done := make(chan struct{})
	go func() {
		defer close(done)
		conv.Send(ctx, "first", SendOptions{})
	}()

	// Wait until the first turn has its placeholder and is blocked on
	// the stream.
	deadline := time.Now().Add(2 * time.Second)
	for conv.Len() != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if conv.Len() != 2 {
		t.Fatal("first turn never reached streaming state")
	}

	if err := conv.Send(ctx, "second", SendOptions{}); err != nil {
		t.Errorf("double submit returned error: %v", err)
	}
	if conv.Len() != 2 {
		t.Errorf("double submit changed conversation length to %d", conv.Len())
	}
	if opener.openCalls() != 1 {
		t.Errorf("open calls = %d, want 1", opener.openCalls())
	}

	close(gate)
	<-done

	// After the turn finishes, sending works again.
	if err := conv.Send(ctx, "third", SendOptions{}); err != nil {
		t.Fatalf("Send after turn finished failed: %v", err)
	}
	if conv.Len() != 4 {
		t.Errorf("conversation length = %d, want 4", conv.Len())
	}
}

func TestSendOpenErrorAppendsAssistantError(t *testing.T) {
	opener := &fakeOpener{openErr: &RequestError{StatusCode: 503}}
	conv := NewConversation(opener, "repo")

	err := conv.Send(ctx, "hello", SendOptions{})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != 503 {
		t.Fatalf("err = %v, want *RequestError with status 503", err)
	}

	messages := conv.Messages()
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[1].Role != RoleAssistant || !strings.Contains(messages[1].Content, "HTTP 503") {
		t.Errorf("assistant error message = %+v", messages[1])
	}
}

func TestSendKeepsPartialContentOnReadError(t *testing.T) {
	opener := &fakeOpener{
		chunks:  []string{"partial answer"},
		readErr: errors.New("connection reset"),
	}
	conv := NewConversation(opener, "repo")

	if err := conv.Send(ctx, "hello", SendOptions{}); err != nil {
		t.Fatalf("mid-stream failure must not surface as an error, got %v", err)
	}

	messages := conv.Messages()
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[1].Content != "partial answer" {
		t.Errorf("partial content = %q, want %q", messages[1].Content, "partial answer")
	}
	if !opener.readers[0].closed {
		t.Error("stream reader was not released")
	}
}

func TestDeepResearchMarksWirePayloadOnly(t *testing.T) {
	opener := &fakeOpener{chunks: []string{"first answer"}}
	conv := NewConversation(opener, "repo")

	if err := conv.Send(ctx, "plain question", SendOptions{}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := conv.Send(ctx, "research this", SendOptions{DeepResearch: true}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(opener.requests) != 2 {
		t.Fatalf("got %d requests, want 2", len(opener.requests))
	}

	wire := opener.requests[1].Messages
	last := wire[len(wire)-1]
	if last.Content != "[DEEP RESEARCH] research this" {
		t.Errorf("wire content = %q, want the marker prefix", last.Content)
	}
	// Only the new turn carries the marker, not past turns.
	if wire[0].Content != "plain question" {
		t.Errorf("past turn was retroactively marked: %q", wire[0].Content)
	}

	// The stored conversation never shows the marker.
	messages := conv.Messages()
	if messages[2].Content != "research this" {
		t.Errorf("stored content = %q, want unmarked text", messages[2].Content)
	}
}

func TestSendForwardsOptions(t *testing.T) {
	opener := &fakeOpener{chunks: []string{"ok"}}
	conv := NewConversation(opener, "https://github.com/acme/widget")

	mcp := &MCPServer{URL: "https://mcp.example.com", Auth: "token"}
	if err := conv.Send(ctx, "hi", SendOptions{LocalOllama: true, MCPServer: mcp}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	req := opener.requests[0]
	if req.RepoURL != "https://github.com/acme/widget" {
		t.Errorf("repo url = %q", req.RepoURL)
	}
	if !req.LocalOllama {
		t.Error("local_ollama not forwarded")
	}
	if req.MCPServer == nil || req.MCPServer.URL != "https://mcp.example.com" {
		t.Errorf("mcp server = %+v", req.MCPServer)
	}
}
