package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/rooksync/internal/api"
	"github.com/nextlevelbuilder/rooksync/internal/channel"
	"github.com/nextlevelbuilder/rooksync/internal/jobs"
	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow job progress and status changes live",
		Run: func(cmd *cobra.Command, args []string) {
			runWatch()
		},
	}
}

func runWatch() {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("loading config: %v", err)
	}

	wsURL, err := cfg.WSURL()
	if err != nil {
		fatalf("%v", err)
	}

	client := api.NewClient(cfg.ServerURL)
	view := newTermView()

	sup := jobs.NewSupervisor(func() {
		renderJobsTable(client, view)
	})
	sup.Add(jobs.NewTracker(client.AnalysisBinding(), view))
	sup.Add(jobs.NewTracker(client.ImportBinding(cfg.Import.Username, cfg.Import.Source, cfg.Import.MaxGames), view))
	sup.Add(jobs.NewTracker(client.SyncBinding(), view))
	for _, kind := range []string{"backfill_eco", "backfill_phases", "backfill_tactics"} {
		sup.Add(jobs.NewTracker(client.BackfillBinding(kind), view))
	}
	sup.Add(jobs.NewTracker(client.DeleteAllBinding(), view))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := channel.New(channel.Config{URL: wsURL})
	sup.Bind(ctx, ch.Handlers())
	ch.Subscribe(append(append([]string{}, protocol.JobTopics...), protocol.TopicStatsUpdated)...)

	sup.LoadAll(ctx)
	if err := ch.Connect(ctx); err != nil {
		// Connect keeps retrying with backoff; just note the first failure.
		view.Info("channel", fmt.Sprintf("not connected yet: %v", err))
	}

	<-ctx.Done()
	ch.Disconnect()
	sup.Close()
	fmt.Println()
}

// renderJobsTable prints the most recent jobs after the debounced
// refresh fires.
func renderJobsTable(client *api.Client, view *termView) {
	recent, err := client.ListJobs(context.Background(), "", "", 10)
	if err != nil {
		view.Error("jobs", fmt.Sprintf("refreshing job list: %v", err))
		return
	}
	view.ShowTable(recent)
}

// termView renders tracker effects as styled terminal lines. Output is
// serialized: events arrive from the channel read loop while table
// refreshes come from the debouncer goroutine.
type termView struct {
	mu sync.Mutex

	kindStyle    lipgloss.Style
	barStyle     lipgloss.Style
	successStyle lipgloss.Style
	errorStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	headerStyle  lipgloss.Style
}

func newTermView() *termView {
	return &termView{
		kindStyle:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		barStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		headerStyle:  lipgloss.NewStyle().Bold(true).Underline(true),
	}
}

const barWidth = 24

func (v *termView) ShowProgress(kind string, current, total, percent int) {
	filled := barWidth * percent / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	v.printf("%s %s %3d%% (%d/%d)\n",
		v.kindStyle.Render(pad(kind)), v.barStyle.Render(bar), percent, current, total)
}

func (v *termView) HideProgress(kind string) {
	v.printf("%s %s\n", v.kindStyle.Render(pad(kind)), v.infoStyle.Render("—"))
}

func (v *termView) Info(kind, message string) {
	v.printf("%s %s\n", v.kindStyle.Render(pad(kind)), v.infoStyle.Render(message))
}

func (v *termView) Success(kind, message string) {
	v.printf("%s %s\n", v.kindStyle.Render(pad(kind)), v.successStyle.Render("✓ "+message))
}

func (v *termView) Error(kind, message string) {
	v.printf("%s %s\n", v.kindStyle.Render(pad(kind)), v.errorStyle.Render("✗ "+message))
}

// ShowTable prints a compact recent-jobs table.
func (v *termView) ShowTable(recent []api.JobStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Println(v.headerStyle.Render("recent jobs"))
	for _, j := range recent {
		line := fmt.Sprintf("  %-18s %-10s %s", j.JobType, j.Status, j.JobID)
		switch j.Status {
		case protocol.StatusFailed:
			line = v.errorStyle.Render(line)
		case protocol.StatusCompleted:
			line = v.successStyle.Render(line)
		}
		fmt.Println(line)
	}
}

func (v *termView) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Printf(format, args...)
}

func pad(kind string) string {
	return fmt.Sprintf("%-18s", kind)
}
