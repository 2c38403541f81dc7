package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kalambet/wikigen/internal/track"
	"github.com/kalambet/wikigen/internal/wiki"
)

var watchCmd = &cobra.Command{
	Use:   "watch <request-id>",
	Short: "Watch a generation job live",
	Long: `Watch a generation job live.

Polls the backend and renders stage progress as it happens. Press r to
force a regeneration of the job, q to quit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")

		client, cfg, err := backendClient()
		if err != nil {
			return err
		}

		repoURL, title := "", ""
		if rec, ok := lookupJob(cfg, args[0]); ok {
			repoURL, title = rec.RepoURL, rec.Title
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		tracker := track.New(client, cfg.Poll.IntervalDuration(), cfg.Poll.RefreshCeilingDuration())
		tracker.Start(ctx, args[0])
		defer tracker.Stop()

		m := newWatchModel(ctx, tracker, repoURL, title, filter)
		if _, err := tea.NewProgram(m).Run(); err != nil {
			return fmt.Errorf("watch ui: %w", err)
		}

		if status := tracker.Status(); status != nil {
			syncJobRecord(cfg, status)
			renderStatus(cmd.OutOrStdout(), status, filter)
			if status.Status == wiki.StatusFailed {
				return fmt.Errorf("generation failed: %s", status.Error)
			}
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().String("filter", "", "show only stages matching this term")
}

var (
	watchTitleStyle   = lipgloss.NewStyle().Bold(true)
	watchDimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	watchDoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	watchActiveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	watchPendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	watchErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// watchTickMsg triggers a re-read of the tracker state.
type watchTickMsg time.Time

// watchRefreshMsg reports the outcome of a forced regeneration.
type watchRefreshMsg struct{ err error }

// watchModel renders one tracked job. The tracker owns polling; the
// model only reads snapshots on a UI tick.
type watchModel struct {
	ctx     context.Context
	tracker *track.Tracker
	repoURL string
	title   string
	filter  string

	width      int
	status     *wiki.JobStatus
	refreshErr error
	spinner    spinner.Model
	lastUpdate time.Time
}

func newWatchModel(ctx context.Context, tracker *track.Tracker, repoURL, title, filter string) *watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	return &watchModel{
		ctx:     ctx,
		tracker: tracker,
		repoURL: repoURL,
		title:   title,
		filter:  filter,
		width:   80,
		spinner: s,
	}
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick())
}

func (m *watchModel) tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m *watchModel) refresh() tea.Cmd {
	return func() tea.Msg {
		_, err := m.tracker.Refresh(m.ctx, m.repoURL, m.title)
		return watchRefreshMsg{err: err}
	}
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.refreshErr = nil
			return m, m.refresh()
		}

	case watchTickMsg:
		m.status = m.tracker.Status()
		m.lastUpdate = time.Time(msg)
		return m, m.tick()

	case watchRefreshMsg:
		m.refreshErr = msg.err

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *watchModel) View() string {
	var b strings.Builder

	if m.status == nil {
		b.WriteString(m.spinner.View())
		b.WriteString(" Waiting for first status...\n")
		b.WriteString(m.footer())
		return b.String()
	}

	status := m.status

	header := status.Title
	if header == "" {
		header = status.RequestID
	}
	b.WriteString(watchTitleStyle.Render(header))
	b.WriteString(watchDimStyle.Render("  " + status.RequestID))
	b.WriteString("\n\n")

	b.WriteString(m.statusLine(status))
	b.WriteString("\n")
	b.WriteString(m.progressBar(status.Progress))
	b.WriteString("\n")

	if status.Error != "" {
		b.WriteString(watchErrorStyle.Render("  " + status.Error))
		b.WriteString("\n")
	}
	if status.OutputURL != "" {
		b.WriteString(watchDimStyle.Render("  output: " + status.OutputURL))
		b.WriteString("\n")
	}

	if stages := track.FilterStages(status.Stages, m.filter); len(stages) > 0 {
		b.WriteString("\n")
		m.renderStages(&b, stages, status.CurrentStage)
	}

	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

func (m *watchModel) statusLine(status *wiki.JobStatus) string {
	var line string
	switch status.Status {
	case wiki.StatusCompleted:
		line = watchDoneStyle.Render("✓ completed")
	case wiki.StatusFailed:
		line = watchErrorStyle.Render("✗ failed")
	default:
		line = m.spinner.View() + watchActiveStyle.Render(status.Status)
		if status.CurrentStage != "" {
			line += watchDimStyle.Render("  " + status.CurrentStage)
		}
	}
	return "  " + line
}

func (m *watchModel) progressBar(progress int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	barWidth := m.width - 12
	if barWidth < 10 {
		barWidth = 10
	}
	filled := barWidth * progress / 100

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	if progress == 100 {
		bar = watchDoneStyle.Render(bar)
	} else {
		bar = watchActiveStyle.Render(bar)
	}
	return fmt.Sprintf("  %s %3d%%", bar, progress)
}

// renderStages walks the filtered stage list in source order, expanding
// each chapter group at the position it first appears.
func (m *watchModel) renderStages(b *strings.Builder, stages []wiki.Stage, currentStage string) {
	groups, _ := track.GroupStages(stages)
	grouped := make(map[string]bool)
	for _, g := range groups {
		grouped[g.Parent.Name] = true
		for _, c := range g.Children {
			grouped[c.Name] = true
		}
	}

	printed := make(map[string]bool)
	for _, stage := range stages {
		if !grouped[stage.Name] {
			b.WriteString("  " + m.stageLine(stage, currentStage) + "\n")
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
			b.WriteString("  " + m.stageLine(g.Parent, currentStage) + "\n")
			for _, child := range g.Children {
				b.WriteString("      " + m.stageLine(child, currentStage) + "\n")
			}
		}
	}
}

func (m *watchModel) stageLine(stage wiki.Stage, currentStage string) string {
	mark := watchPendingStyle.Render("○")
	if stage.Completed {
		mark = watchDoneStyle.Render("✓")
	} else if stage.Name == currentStage {
		mark = watchActiveStyle.Render("▸")
	}

	line := mark + " " + stage.Name
	if stage.Description != "" {
		line += watchDimStyle.Render(" " + stage.Description)
	}
	if stage.ExecutionTime != nil {
		line += watchDimStyle.Render(fmt.Sprintf(" (%.1fs)", *stage.ExecutionTime))
	}
	return line
}

func (m *watchModel) footer() string {
	keys := "[r]efresh [q]uit"
	if m.repoURL == "" || m.title == "" {
		keys = "[q]uit"
	}

	parts := []string{keys}
	if !m.lastUpdate.IsZero() {
		parts = append(parts, "updated "+m.lastUpdate.Format("15:04:05"))
	}
	if m.refreshErr != nil {
		parts = append(parts, watchErrorStyle.Render("refresh failed: "+m.refreshErr.Error()))
	}
	return watchDimStyle.Render(strings.Join(parts, "  ·  "))
}
