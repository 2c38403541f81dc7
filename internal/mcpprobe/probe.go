// Package mcpprobe verifies a configured MCP server before its URL is
// persisted and forwarded with chat requests.
package mcpprobe

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Result summarizes a successful probe.
type Result struct {
	ServerName    string
	ServerVersion string
	Tools         []string
}

// Probe connects to the MCP server at url over streamable HTTP,
// performs the initialize handshake, and lists the available tools.
// auth, when non-empty, is sent as the Authorization header.
func Probe(ctx context.Context, url, auth string) (*Result, error) {
	var opts []transport.StreamableHTTPCOption
	if auth != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{
			"Authorization": auth,
		}))
	}

	c, err := client.NewStreamableHttpClient(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating MCP client: %w", err)
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("connecting to MCP server: %w", err)
	}

	var initReq mcp.InitializeRequest
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "wikigen",
		Version: "1.0.0",
	}

	initRes, err := c.Initialize(ctx, initReq)
	if err != nil {
		return nil, fmt.Errorf("initializing MCP session: %w", err)
	}

	toolsRes, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing MCP tools: %w", err)
	}

	result := &Result{
		ServerName:    initRes.ServerInfo.Name,
		ServerVersion: initRes.ServerInfo.Version,
	}
	for _, tool := range toolsRes.Tools {
		result.Tools = append(result.Tools, tool.Name)
	}
	return result, nil
}
