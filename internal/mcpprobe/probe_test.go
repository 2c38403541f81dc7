package mcpprobe

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func TestProbeListsTools(t *testing.T) {
	s := server.NewMCPServer("test-mcp", "0.1.0", server.WithToolCapabilities(true))
	s.AddTool(
		mcp.NewTool("search_code", mcp.WithDescription("Search repository code")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		},
	)

	ts := server.NewTestStreamableHTTPServer(s)
	defer ts.Close()

	result, err := Probe(context.Background(), ts.URL, "")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if result.ServerName != "test-mcp" {
		t.Errorf("server name = %q", result.ServerName)
	}
	if len(result.Tools) != 1 || result.Tools[0] != "search_code" {
		t.Errorf("tools = %v, want [search_code]", result.Tools)
	}
}

func TestProbeUnreachableServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Probe(ctx, "http://127.0.0.1:1/mcp", ""); err == nil {
		t.Error("expected error for unreachable server")
	}
}
