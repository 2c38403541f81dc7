package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// deepResearchPrefix marks a turn for the backend's multi-step
// research mode. It is applied to the wire copy of the submitted
// message only; stored conversation content never carries it.
const deepResearchPrefix = "[DEEP RESEARCH] "

// SendOptions control a single chat turn.
type SendOptions struct {
	DeepResearch bool
	LocalOllama  bool
	MCPServer    *MCPServer

	// OnChunk, when set, is called with each appended chunk after it
	// has been applied to the assistant message. Called from the read
	// loop, outside the conversation lock.
	OnChunk func(chunk string)
}

// Conversation accumulates one chat session against a repository.
// Messages are append-only; while a turn is streaming, exactly one
// assistant message (the last one) receives chunk appends. A single
// reader loop serializes appends, and all message state is guarded by
// a mutex so a rendering layer may read concurrently.
type Conversation struct {
	opener  StreamOpener
	repoURL string
	logger  *slog.Logger

	mu       sync.Mutex
	messages []Message
	inFlight bool
}

// NewConversation creates an empty conversation over repoURL.
func NewConversation(opener StreamOpener, repoURL string) *Conversation {
	return &Conversation{
		opener:  opener,
		repoURL: repoURL,
		logger:  slog.Default(),
	}
}

// Messages returns a snapshot of the conversation.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the conversation.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Send runs one chat turn: append the user message, open the stream,
// and append decoded chunks to a single assistant message until the
// stream ends. Blank text and double-submits while a turn is in
// flight are silent no-ops. A failure to open the stream is surfaced
// as an assistant-authored error message and returned. A mid-stream
// read error (including cancellation via ctx) keeps the partial
// content and ends the turn without retry.
func (c *Conversation) Send(ctx context.Context, text string, opts SendOptions) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// The user's own message must be visible before any network
	// latency, so it is appended synchronously under the in-flight
	// guard.
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil
	}
	c.inFlight = true
	c.messages = append(c.messages, Message{Role: RoleUser, Content: text})
	history := make([]Message, len(c.messages))
	copy(history, c.messages)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	if opts.DeepResearch {
		last := &history[len(history)-1]
		last.Content = deepResearchPrefix + last.Content
	}

	stream, err := c.opener.OpenStream(ctx, StreamRequest{
		RepoURL:     c.repoURL,
		Messages:    history,
		LocalOllama: opts.LocalOllama,
		MCPServer:   opts.MCPServer,
	})
	if err != nil {
		c.mu.Lock()
		c.messages = append(c.messages, Message{
			Role:    RoleAssistant,
			Content: fmt.Sprintf("Sorry, I couldn't reach the chat service: %v", err),
		})
		c.mu.Unlock()
		return err
	}
	defer stream.Close()

	// One placeholder per turn; every chunk targets this message.
	c.mu.Lock()
	c.messages = append(c.messages, Message{Role: RoleAssistant})
	idx := len(c.messages) - 1
	c.mu.Unlock()

	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			c.mu.Lock()
			c.messages[idx].Content += chunk
			c.mu.Unlock()
			if opts.OnChunk != nil {
				opts.OnChunk(chunk)
			}
		}
		if err != nil {
			if err != io.EOF {
				// Partial content stays; the turn is over.
				c.logger.Warn("chat stream read failed", "error", err)
			}
			return nil
		}
	}
}
