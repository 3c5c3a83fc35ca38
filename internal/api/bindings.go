package api

import (
	"context"

	"github.com/nextlevelbuilder/rooksync/internal/jobs"
)

func snapshot(js JobStatus) jobs.Snapshot {
	return jobs.Snapshot{
		JobID:   js.JobID,
		Status:  js.Status,
		Current: js.ProgressCurrent,
		Total:   js.ProgressTotal,
	}
}

// AnalysisBinding binds the "analysis" tracker to the analysis
// endpoints. Analysis is the only kind with server-side cancellation.
func (c *Client) AnalysisBinding() jobs.Binding {
	return jobs.Binding{
		Kind: "analysis",
		Poll: func(ctx context.Context) (jobs.Snapshot, error) {
			js, err := c.AnalysisStatus(ctx)
			return snapshot(js), err
		},
		Start: func(ctx context.Context) (string, error) {
			return c.StartAnalysis(ctx)
		},
		Stop: func(ctx context.Context, jobID string) error {
			return c.StopAnalysis(ctx, jobID)
		},
	}
}

// ImportBinding binds the "import" tracker with preconfigured platform
// parameters for its start call.
func (c *Client) ImportBinding(username, source string, maxGames int) jobs.Binding {
	return jobs.Binding{
		Kind: "import",
		Poll: func(ctx context.Context) (jobs.Snapshot, error) {
			js, err := c.ImportStatus(ctx)
			return snapshot(js), err
		},
		Start: func(ctx context.Context) (string, error) {
			return c.StartImport(ctx, username, source, maxGames)
		},
	}
}

// SyncBinding binds the "sync" tracker. Sync jobs report no job id on
// start; the poll path picks up the running job instead.
func (c *Client) SyncBinding() jobs.Binding {
	return jobs.Binding{
		Kind: "sync",
		Poll: func(ctx context.Context) (jobs.Snapshot, error) {
			js, err := c.SyncStatus(ctx)
			return snapshot(js), err
		},
		Start: func(ctx context.Context) (string, error) {
			if err := c.StartSync(ctx); err != nil {
				return "", err
			}
			js, err := c.SyncStatus(ctx)
			return js.JobID, err
		},
	}
}

// DeleteAllBinding binds the "delete_all_data" tracker to the bulk
// delete endpoints.
func (c *Client) DeleteAllBinding() jobs.Binding {
	return jobs.Binding{
		Kind: "delete_all_data",
		Poll: func(ctx context.Context) (jobs.Snapshot, error) {
			js, err := c.DeleteAllStatus(ctx)
			return snapshot(js), err
		},
		Start: func(ctx context.Context) (string, error) {
			return c.StartDeleteAll(ctx)
		},
	}
}

// BackfillBinding binds a backfill tracker ("backfill_eco",
// "backfill_phases" or "backfill_tactics").
func (c *Client) BackfillBinding(kind string) jobs.Binding {
	return jobs.Binding{
		Kind: kind,
		Poll: func(ctx context.Context) (jobs.Snapshot, error) {
			js, err := c.BackfillStatus(ctx, kind)
			return snapshot(js), err
		},
		Start: func(ctx context.Context) (string, error) {
			return c.StartBackfill(ctx, kind)
		},
	}
}
