package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/wikigen/internal/mcpprobe"
	"github.com/kalambet/wikigen/internal/storage"
)

const probeTimeout = 15 * time.Second

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Manage the MCP server forwarded with chat requests",
}

var mcpSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Configure an MCP server (probed before saving)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		auth, _ := cmd.Flags().GetString("auth")
		skipCheck, _ := cmd.Flags().GetBool("skip-check")

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		setupLogging(cfg)

		if !skipCheck {
			ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
			defer cancel()

			result, err := mcpprobe.Probe(ctx, args[0], auth)
			if err != nil {
				return fmt.Errorf("MCP server check failed (use --skip-check to save anyway): %w", err)
			}
			printSuccess("Connected to %s %s", result.ServerName, result.ServerVersion)
			if len(result.Tools) > 0 {
				printStatus("Tools", "%s", strings.Join(result.Tools, ", "))
			}
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.SaveMCPServer(storage.MCPServerConfig{URL: args[0], Auth: auth}); err != nil {
			return fmt.Errorf("saving MCP server: %w", err)
		}
		printSuccess("MCP server saved; it will be forwarded with chat requests")
		return nil
	},
}

var mcpShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		saved, err := store.GetMCPServer()
		if errors.Is(err, storage.ErrNotFound) {
			printStep("No MCP server configured")
			return nil
		}
		if err != nil {
			return err
		}

		printStatus("URL", "%s", saved.URL)
		if saved.Auth != "" {
			printStatus("Auth", "(set)")
		}
		return nil
	},
}

var mcpClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the configured MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.ClearMCPServer(); err != nil {
			return err
		}
		printSuccess("MCP server cleared")
		return nil
	},
}

var mcpTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Probe the configured MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		setupLogging(cfg)

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		saved, err := store.GetMCPServer()
		store.Close()
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no MCP server configured; set one with: wikigen mcp set <url>")
		}
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
		defer cancel()

		result, err := mcpprobe.Probe(ctx, saved.URL, saved.Auth)
		if err != nil {
			return err
		}

		printSuccess("Connected to %s %s", result.ServerName, result.ServerVersion)
		if len(result.Tools) == 0 {
			printWarning("server exposes no tools")
			return nil
		}
		printStatus("Tools", "%s", strings.Join(result.Tools, ", "))
		return nil
	},
}

func init() {
	mcpSetCmd.Flags().String("auth", "", "authorization header value")
	mcpSetCmd.Flags().Bool("skip-check", false, "save without probing the server")

	mcpCmd.AddCommand(mcpSetCmd)
	mcpCmd.AddCommand(mcpShowCmd)
	mcpCmd.AddCommand(mcpClearCmd)
	mcpCmd.AddCommand(mcpTestCmd)
}
