package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/vnglass/glassflow/jobs"
)

type stubEnqueuer struct {
	tasks  []*asynq.Task
	err    error
	closed bool
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error {
	s.closed = true
	return nil
}

type stubInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
	closed    bool
}

func (s *stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.info == nil {
		return nil, errors.New("queue not found")
	}
	return s.info, nil
}

func (s *stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, nil
}

func (s *stubInspector) Close() error {
	s.closed = true
	return nil
}

func newTestToolbox(client *stubEnqueuer, inspector *stubInspector) *toolbox {
	return &toolbox{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		openPool: func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
			return nil, errors.New("postgres disabled in tests")
		},
		openJobs: func(string) *JobsCLI {
			return &JobsCLI{client: client, inspector: inspector}
		},
	}
}

func TestTriggerSupportedJobs(t *testing.T) {
	client := &stubEnqueuer{}
	jobsCLI := &JobsCLI{client: client}

	info, err := jobsCLI.Trigger(context.Background(), jobs.TaskCompletionSweep)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskCompletionSweep, info.Type)

	_, err = jobsCLI.Trigger(context.Background(), jobs.TaskIdempotencyCleanup)
	require.NoError(t, err)
	require.Len(t, client.tasks, 2)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	jobsCLI := &JobsCLI{client: &stubEnqueuer{}}
	_, err := jobsCLI.Trigger(context.Background(), "production:rebuild-everything")
	require.ErrorContains(t, err, "unsupported job")
}

func TestJobsCLIWithoutClients(t *testing.T) {
	var jobsCLI *JobsCLI
	_, err := jobsCLI.Trigger(context.Background(), jobs.TaskCompletionSweep)
	require.Error(t, err)

	empty := &JobsCLI{}
	_, err = empty.InspectQueue()
	require.Error(t, err)
	_, err = empty.ListScheduled(5)
	require.Error(t, err)
}

func TestJobsTriggerCommand(t *testing.T) {
	client := &stubEnqueuer{}
	inspector := &stubInspector{}
	out := new(bytes.Buffer)

	err := newApp(newTestToolbox(client, inspector), out).Run([]string{"glassflowctl", "jobs", "trigger", jobs.TaskCompletionSweep})
	require.NoError(t, err)
	require.Contains(t, out.String(), "enqueued "+jobs.TaskCompletionSweep)
	require.True(t, client.closed)
	require.True(t, inspector.closed)
}

func TestJobsTriggerCommandRequiresName(t *testing.T) {
	out := new(bytes.Buffer)
	err := newApp(newTestToolbox(&stubEnqueuer{}, &stubInspector{}), out).Run([]string{"glassflowctl", "jobs", "trigger"})
	require.ErrorContains(t, err, "task name required")
}

func TestJobsInspectAndScheduledCommands(t *testing.T) {
	inspector := &stubInspector{
		info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 3, Active: 1, Retry: 2},
		scheduled: []*asynq.TaskInfo{{
			ID:            "sweep-1",
			Type:          jobs.TaskCompletionSweep,
			NextProcessAt: time.Date(2026, 10, 19, 8, 15, 0, 0, time.UTC),
		}},
	}
	rt := newTestToolbox(&stubEnqueuer{}, inspector)
	out := new(bytes.Buffer)

	require.NoError(t, newApp(rt, out).Run([]string{"glassflowctl", "jobs", "inspect"}))
	require.Contains(t, out.String(), "pending=3 active=1 scheduled=0 retry=2")

	out.Reset()
	require.NoError(t, newApp(rt, out).Run([]string{"glassflowctl", "jobs", "scheduled", "--size", "5"}))
	require.Contains(t, out.String(), "sweep-1\t"+jobs.TaskCompletionSweep+"\t2026-10-19T08:15:00Z")
}

func TestPoolCommandsSurfaceConnectionErrors(t *testing.T) {
	rt := newTestToolbox(&stubEnqueuer{}, &stubInspector{})

	err := newApp(rt, io.Discard).Run([]string{"glassflowctl", "migrate"})
	require.ErrorContains(t, err, "connect postgres")

	err = newApp(rt, io.Discard).Run([]string{"glassflowctl", "seed", "dispatch", "--plan", "4"})
	require.ErrorContains(t, err, "postgres disabled")
}
