package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/wikigen/internal/config"
	"github.com/kalambet/wikigen/internal/storage"
	"github.com/kalambet/wikigen/internal/track"
	"github.com/kalambet/wikigen/internal/wiki"
)

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Submit a repository for documentation generation",
	Long: `Submit a repository for documentation generation.

Examples:
  wikigen generate --repo https://github.com/acme/widget --title "Widget"
  wikigen generate --repo https://github.com/acme/widget --title "Widget" --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoURL, _ := cmd.Flags().GetString("repo")
		title, _ := cmd.Flags().GetString("title")
		force, _ := cmd.Flags().GetBool("force")

		if repoURL == "" {
			return fmt.Errorf("--repo is required")
		}
		if title == "" {
			return fmt.Errorf("--title is required")
		}

		client, cfg, err := backendClient()
		if err != nil {
			return err
		}

		ack, err := client.Generate(cmd.Context(), wiki.GenerateRequest{
			RepoURL: repoURL,
			Title:   title,
			Force:   force,
		})
		if err != nil {
			return err
		}

		recordJob(cfg, storage.JobRecord{
			ID:        uuid.New().String(),
			RequestID: ack.RequestID,
			RepoURL:   repoURL,
			Title:     title,
			Status:    ack.Status,
		})

		if ack.Status == wiki.StatusCompleted && !force {
			printSuccess("Documentation already generated for %s", title)
			printStatus("Request", "%s", ack.RequestID)
			printStep("Use --force to regenerate, or `wikigen read` to view it")
			return nil
		}

		printSuccess("Generation queued")
		printStatus("Request", "%s", ack.RequestID)
		printStep("Track progress with: wikigen watch %s", ack.RequestID)
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "Show the current status of a generation job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")

		client, cfg, err := backendClient()
		if err != nil {
			return err
		}

		status, err := client.Detail(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		syncJobRecord(cfg, status)
		renderStatus(os.Stdout, status, filter)
		return nil
	},
}

// renderStatus writes a human-readable view of a job, including its
// stage hierarchy.
func renderStatus(w io.Writer, status *wiki.JobStatus, filter string) {
	fmt.Fprintf(w, "%s (%s)\n", status.Title, status.RequestID)
	fmt.Fprintf(w, "  Status:   %s\n", colorize(statusColor(status.Status), status.Status))
	fmt.Fprintf(w, "  Progress: %d%%\n", status.Progress)
	if status.CurrentStage != "" {
		fmt.Fprintf(w, "  Stage:    %s\n", status.CurrentStage)
	}
	if status.Error != "" {
		fmt.Fprintf(w, "  Error:    %s\n", colorize(colorRed, status.Error))
	}
	if status.OutputURL != "" {
		fmt.Fprintf(w, "  Output:   %s\n", status.OutputURL)
	}

	stages := track.FilterStages(status.Stages, filter)
	if len(stages) == 0 {
		return
	}

	fmt.Fprintln(w, "Stages:")
	groups, _ := track.GroupStages(stages)
	grouped := make(map[string]bool)
	for _, g := range groups {
		grouped[g.Parent.Name] = true
		for _, c := range g.Children {
			grouped[c.Name] = true
		}
	}

	// Walk the source order, expanding each group at its parent's (or
	// first child's) position.
	printed := make(map[string]bool)
	for _, stage := range stages {
		if !grouped[stage.Name] {
			fmt.Fprintf(w, "  %s\n", renderStage(stage, status.CurrentStage))
			continue
		}
		for _, g := range groups {
			if printed[g.Parent.Name] {
				continue
			}
			if g.Parent.Name != stage.Name && !strings.HasPrefix(stage.Name, g.Parent.Name+"_chapter-") {
				continue
			}
			printed[g.Parent.Name] = true
			fmt.Fprintf(w, "  %s\n", renderStage(g.Parent, status.CurrentStage))
			for _, child := range g.Children {
				fmt.Fprintf(w, "      %s\n", renderStage(child, status.CurrentStage))
			}
		}
	}
}

func renderStage(stage wiki.Stage, currentStage string) string {
	mark := colorize(colorYellow, "○")
	if stage.Completed {
		mark = colorize(colorGreen, "✓")
	} else if stage.Name == currentStage {
		mark = colorize(colorCyan, "▸")
	}

	line := mark + " " + stage.Name
	if stage.Description != "" {
		line += " — " + stage.Description
	}
	if stage.ExecutionTime != nil {
		line += fmt.Sprintf(" (%.1fs)", *stage.ExecutionTime)
	}
	return line
}

// --- refresh ---

var refreshCmd = &cobra.Command{
	Use:   "refresh <request-id>",
	Short: "Force regeneration of a job's documentation",
	Long: `Force regeneration of a job's documentation.

The repository URL and title are read from local history when the job
was submitted from this machine; otherwise pass --repo and --title.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoURL, _ := cmd.Flags().GetString("repo")
		title, _ := cmd.Flags().GetString("title")
		wait, _ := cmd.Flags().GetBool("wait")

		client, cfg, err := backendClient()
		if err != nil {
			return err
		}

		if repoURL == "" || title == "" {
			if rec, ok := lookupJob(cfg, args[0]); ok {
				if repoURL == "" {
					repoURL = rec.RepoURL
				}
				if title == "" {
					title = rec.Title
				}
			}
		}

		tracker := track.New(client, cfg.Poll.IntervalDuration(), cfg.Poll.RefreshCeilingDuration())
		tracker.Track(args[0])

		ack, err := tracker.Refresh(cmd.Context(), repoURL, title)
		if errors.Is(err, track.ErrMissingRepoURL) {
			return fmt.Errorf("repository URL unknown for %s; pass --repo", args[0])
		}
		if errors.Is(err, track.ErrMissingTitle) {
			return fmt.Errorf("title unknown for %s; pass --title", args[0])
		}
		if err != nil {
			return err
		}

		printSuccess("Regeneration accepted")
		printStatus("Request", "%s", ack.RequestID)

		if !wait {
			tracker.Stop()
			printStep("Track progress with: wikigen watch %s", ack.RequestID)
			return nil
		}

		return waitForJob(cmd, tracker, cfg)
	},
}

// waitForJob blocks until the tracker's poll loop finishes, printing
// progress transitions along the way.
func waitForJob(cmd *cobra.Command, tracker *track.Tracker, cfg config.Config) error {
	lastStage := ""
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cmd.Context().Done():
			tracker.Stop()
			return cmd.Context().Err()
		case <-tracker.Done():
			status := tracker.Status()
			if status == nil {
				return fmt.Errorf("no status received")
			}
			syncJobRecord(cfg, status)
			if status.Status == wiki.StatusFailed {
				return fmt.Errorf("generation failed: %s", status.Error)
			}
			printSuccess("Generation %s (%d%%)", status.Status, status.Progress)
			return nil
		case <-ticker.C:
			if status := tracker.Status(); status != nil && status.CurrentStage != lastStage {
				lastStage = status.CurrentStage
				printStep("%s (%d%%)", lastStage, status.Progress)
			}
		}
	}
}

// --- read ---

var readCmd = &cobra.Command{
	Use:   "read <owner> <repo> [page]",
	Short: "Print a generated documentation page",
	Long: `Print a generated documentation page as Markdown.

Defaults to the documentation set's index page. With --all, every page
linked from the index is fetched too and printed in link order.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		client, _, err := backendClient()
		if err != nil {
			return err
		}

		doc, err := client.ByRepo(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		base := strings.Trim(doc.OutputPath, "/")

		page := "index.md"
		if len(args) == 3 {
			page = args[2]
		}

		content, err := client.File(cmd.Context(), base+"/"+page)
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, content)

		if !all {
			return nil
		}
		return printLinkedPages(cmd.Context(), os.Stdout, client, base, content, page)
	},
}

var markdownLinkPattern = regexp.MustCompile(`\]\(([^)#:]+\.md)\)`)

// printLinkedPages fetches every page the index links to and prints
// them in link order. Fetches run concurrently with bounded fan-out;
// output stays ordered.
func printLinkedPages(ctx context.Context, w io.Writer, client *wiki.Client, base, index, indexPage string) error {
	var pages []string
	seen := map[string]bool{indexPage: true}
	for _, m := range markdownLinkPattern.FindAllStringSubmatch(index, -1) {
		page := strings.TrimPrefix(m[1], "./")
		if seen[page] {
			continue
		}
		seen[page] = true
		pages = append(pages, page)
	}
	if len(pages) == 0 {
		return nil
	}

	contents := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, page := range pages {
		g.Go(func() error {
			content, err := client.File(gctx, base+"/"+page)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", page, err)
			}
			contents[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, page := range pages {
		fmt.Fprintf(w, "\n\n<!-- %s -->\n\n", page)
		fmt.Fprint(w, contents[i])
	}
	return nil
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List generation jobs submitted from this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		jobs, err := store.ListJobs(limit)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			printStep("No jobs yet. Submit one with: wikigen generate")
			return nil
		}

		for _, j := range jobs {
			fmt.Fprintf(os.Stdout, "%s  %-9s  %s  %s\n",
				j.RequestID,
				colorize(statusColor(j.Status), j.Status),
				j.UpdatedAt.Local().Format("2006-01-02 15:04"),
				j.Title,
			)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage wikigen configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		for _, info := range config.ShowAll(cfg) {
			fmt.Fprintf(os.Stdout, "%-22s %-34s %s\n", info.Key, info.Value, info.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s", args[0])
		return nil
	},
}

func init() {
	generateCmd.Flags().String("repo", "", "repository URL (required)")
	generateCmd.Flags().String("title", "", "documentation title (required)")
	generateCmd.Flags().Bool("force", false, "regenerate even if documentation exists")

	statusCmd.Flags().String("filter", "", "show only stages matching this term")

	refreshCmd.Flags().String("repo", "", "repository URL (read from history when omitted)")
	refreshCmd.Flags().String("title", "", "documentation title (read from history when omitted)")
	refreshCmd.Flags().Bool("wait", false, "poll until the regenerated job finishes")

	readCmd.Flags().Bool("all", false, "also fetch every page linked from the index")

	historyCmd.Flags().Int("limit", 20, "maximum number of jobs to list")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- local history helpers ---

// recordJob best-effort persists a job to local history. History is a
// convenience; failures are warnings, not command errors.
func recordJob(cfg config.Config, rec storage.JobRecord) {
	store, err := openStore(cfg)
	if err != nil {
		printWarning("could not record job locally: %v", err)
		return
	}
	defer store.Close()
	if err := store.SaveJob(rec); err != nil {
		printWarning("could not record job locally: %v", err)
	}
}

// syncJobRecord updates local history from a freshly fetched status.
func syncJobRecord(cfg config.Config, status *wiki.JobStatus) {
	store, err := openStore(cfg)
	if err != nil {
		return
	}
	defer store.Close()

	completedAt := time.Time{}
	if status.CompletedAt != "" {
		if t, err := time.Parse(time.RFC3339, status.CompletedAt); err == nil {
			completedAt = t
		}
	}

	err = store.UpdateJobStatus(status.RequestID, status.Status, status.OutputURL, completedAt)
	if errors.Is(err, storage.ErrNotFound) {
		// Job submitted elsewhere; adopt it into history.
		store.SaveJob(storage.JobRecord{
			ID:          uuid.New().String(),
			RequestID:   status.RequestID,
			RepoURL:     status.RepoURL,
			Title:       status.Title,
			Status:      status.Status,
			OutputURL:   status.OutputURL,
			CompletedAt: completedAt,
		})
	}
}

func lookupJob(cfg config.Config, requestID string) (storage.JobRecord, bool) {
	store, err := openStore(cfg)
	if err != nil {
		return storage.JobRecord{}, false
	}
	defer store.Close()

	rec, err := store.GetJob(requestID)
	if err != nil {
		return storage.JobRecord{}, false
	}
	return rec, true
}
