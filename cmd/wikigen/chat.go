package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/wikigen/internal/chat"
	"github.com/kalambet/wikigen/internal/config"
	"github.com/kalambet/wikigen/internal/storage"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat about a repository's code and documentation",
	Long: `Chat about a repository's code and documentation.

Answers stream from the backend and are grounded in the repository.
A configured MCP server (see "wikigen mcp") is forwarded with every
request.

Examples:
  wikigen chat --repo https://github.com/acme/widget
  wikigen chat --repo https://github.com/acme/widget --deep-research`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoURL, _ := cmd.Flags().GetString("repo")
		deepResearch, _ := cmd.Flags().GetBool("deep-research")
		localOllama, _ := cmd.Flags().GetBool("local-ollama")

		if repoURL == "" {
			return fmt.Errorf("--repo is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		setupLogging(cfg)
		if !cmd.Flags().Changed("local-ollama") {
			localOllama = cfg.Chat.LocalOllama
		}

		opts := chat.SendOptions{
			DeepResearch: deepResearch,
			LocalOllama:  localOllama,
			OnChunk:      func(chunk string) { fmt.Fprint(os.Stdout, chunk) },
		}
		if mcp, ok := loadMCPServer(cfg); ok {
			opts.MCPServer = mcp
			printStep("Forwarding MCP server %s", mcp.URL)
		}

		conv := chat.NewConversation(chat.NewOpener(cfg.Backend.BaseURL), repoURL)

		printStep("Chatting about %s (empty line or Ctrl-D to quit)", repoURL)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for {
			fmt.Fprint(os.Stderr, colorize(colorBold, "> "))
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				break
			}

			if err := conv.Send(cmd.Context(), line, opts); err != nil {
				var reqErr *chat.RequestError
				if errors.As(err, &reqErr) {
					// The conversation already holds an assistant
					// error message; show it and keep the session.
					messages := conv.Messages()
					fmt.Fprintln(os.Stdout, messages[len(messages)-1].Content)
					continue
				}
				return err
			}
			fmt.Fprintln(os.Stdout)
		}
		return scanner.Err()
	},
}

// loadMCPServer reads the persisted MCP server setting, if any.
func loadMCPServer(cfg config.Config) (*chat.MCPServer, bool) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, false
	}
	defer store.Close()

	saved, err := store.GetMCPServer()
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			printWarning("could not read MCP server setting: %v", err)
		}
		return nil, false
	}
	return &chat.MCPServer{URL: saved.URL, Auth: saved.Auth}, true
}

func init() {
	chatCmd.Flags().String("repo", "", "repository URL (required)")
	chatCmd.Flags().Bool("deep-research", false, "run a multi-step research answer for each question")
	chatCmd.Flags().Bool("local-ollama", false, "use the backend's local Ollama model")
}
