package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/rooksync/internal/api"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and control background jobs",
	}
	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsStartCmd())
	cmd.AddCommand(jobsStopCmd())
	cmd.AddCommand(jobsDeleteCmd())
	return cmd
}

func newAPIClient() *api.Client {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("loading config: %v", err)
	}
	return api.NewClient(cfg.ServerURL)
}

// --- jobs list ---

func jobsListCmd() *cobra.Command {
	var (
		jsonOutput bool
		jobType    string
		status     string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		Run: func(cmd *cobra.Command, args []string) {
			runJobsList(jsonOutput, jobType, status, limit)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&jobType, "type", "", "filter by job type")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum jobs to return")
	return cmd
}

func runJobsList(jsonOutput bool, jobType, status string, limit int) {
	client := newAPIClient()
	records, err := client.ListJobs(context.Background(), jobType, status, limit)
	if err != nil {
		fatalf("listing jobs: %v", err)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(records) == 0 {
		fmt.Println("No jobs found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tTYPE\tSTATUS\tPROGRESS\tERROR")
	for _, j := range records {
		progress := ""
		if j.ProgressTotal > 0 {
			progress = fmt.Sprintf("%d/%d", j.ProgressCurrent, j.ProgressTotal)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.JobID, j.JobType, j.Status, progress, j.ErrorMessage)
	}
	w.Flush()
}

// --- jobs start ---

func jobsStartCmd() *cobra.Command {
	var (
		username string
		source   string
		maxGames int
	)
	cmd := &cobra.Command{
		Use:   "start <kind>",
		Short: "Start a job (import, analysis, sync, backfill_eco, backfill_phases, backfill_tactics, delete_all_data)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runJobsStart(args[0], username, source, maxGames)
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username for import (defaults to config)")
	cmd.Flags().StringVar(&source, "source", "", "game source for import (defaults to config)")
	cmd.Flags().IntVar(&maxGames, "max-games", 0, "import game cap (defaults to config)")
	return cmd
}

func runJobsStart(kind, username, source string, maxGames int) {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("loading config: %v", err)
	}
	if username == "" {
		username = cfg.Import.Username
	}
	if source == "" {
		source = cfg.Import.Source
	}
	if maxGames == 0 {
		maxGames = cfg.Import.MaxGames
	}

	client := api.NewClient(cfg.ServerURL)
	ctx := context.Background()

	var jobID string
	switch kind {
	case "import":
		jobID, err = client.StartImport(ctx, username, source, maxGames)
	case "analysis":
		jobID, err = client.StartAnalysis(ctx)
	case "sync":
		err = client.StartSync(ctx)
	case "backfill_eco", "backfill_phases", "backfill_tactics":
		jobID, err = client.StartBackfill(ctx, kind)
	case "delete_all_data":
		jobID, err = client.StartDeleteAll(ctx)
	default:
		fatalf("unknown job kind %q", kind)
	}
	if err != nil {
		fatalf("starting %s: %v", kind, err)
	}
	if jobID != "" {
		fmt.Printf("Started %s job %s\n", kind, jobID)
	} else {
		fmt.Printf("Started %s\n", kind)
	}
}

// --- jobs stop ---

func jobsStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running analysis job",
		Run: func(cmd *cobra.Command, args []string) {
			runJobsStop()
		},
	}
}

func runJobsStop() {
	client := newAPIClient()
	ctx := context.Background()

	status, err := client.AnalysisStatus(ctx)
	if err != nil {
		fatalf("fetching analysis status: %v", err)
	}
	if status.JobID == "" || status.Status != "running" {
		fmt.Println("No running analysis job.")
		return
	}
	if err := client.StopAnalysis(ctx, status.JobID); err != nil {
		fatalf("stopping analysis: %v", err)
	}
	fmt.Printf("Stopped analysis job %s\n", status.JobID)
}

// --- jobs delete ---

func jobsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job_id>",
		Short: "Delete a finished job record",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client := newAPIClient()
			if err := client.DeleteJob(context.Background(), args[0]); err != nil {
				fatalf("deleting job: %v", err)
			}
			fmt.Printf("Deleted job %s\n", args[0])
		},
	}
}
