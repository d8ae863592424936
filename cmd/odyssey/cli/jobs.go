package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// JobQueue submits ledger jobs.
type JobQueue interface {
	EnqueuePeriodClose(ctx context.Context, payload jobs.PeriodClosePayload) (*asynq.TaskInfo, error)
	EnqueueGLIntegrity(ctx context.Context, company string) (*asynq.TaskInfo, error)
	EnqueuePostDocument(ctx context.Context, payload jobs.PostDocumentPayload) (*asynq.TaskInfo, error)
}

// QueueInspector reads queue state.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	queue     JobQueue
	inspector QueueInspector
}

// NewJobsCLI builds the helpers on an existing client and inspector.
func NewJobsCLI(queue JobQueue, inspector QueueInspector) *JobsCLI {
	return &JobsCLI{queue: queue, inspector: inspector}
}

// TriggerOptions defines flags for jobs trigger.
type TriggerOptions struct {
	Job     string
	Company string
	Period  string
	ActorID int64
	Stdout  io.Writer
	Stderr  io.Writer
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if c == nil || c.queue == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch opts.Job {
	case "close", jobs.TaskPeriodClose:
		return c.queue.EnqueuePeriodClose(ctx, jobs.PeriodClosePayload{Company: opts.Company, Period: opts.Period, ActorID: opts.ActorID})
	case "gl-integrity", jobs.TaskGLIntegrity:
		return c.queue.EnqueueGLIntegrity(ctx, opts.Company)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", opts.Job)
	}
}

// TriggerCommand runs Trigger and prints the task id.
func (c *JobsCLI) TriggerCommand(ctx context.Context, opts TriggerOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	info, err := c.Trigger(ctx, opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
		return exitCode(err)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s on %s as %s\n", info.Type, info.Queue, info.ID)
	return 0
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueues reports the metrics of every ledger queue. Queues that have
// never received a task report zeros.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	out := make([]QueueStats, 0, 2)
	for _, queue := range []string{jobs.QueueCritical, jobs.QueueDefault} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats := QueueStats{Queue: queue}
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, err
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}

// StatsOptions defines flags for jobs stats.
type StatsOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// StatsCommand prints queue depth.
func (c *JobsCLI) StatsCommand(ctx context.Context, opts StatsOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	stats, err := c.InspectQueues(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs stats: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(stats); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs stats: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	p := printer()
	for _, s := range stats {
		p.Fprintf(opts.Stdout, "%-9s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	}
	return 0
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
