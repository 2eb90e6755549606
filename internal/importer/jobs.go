package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"DF-TPLGEN/internal/apperrors"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// JobFunc does the work of one job. It must honour ctx.
type JobFunc func(ctx context.Context) (any, error)

type commitKey struct{}

// Commit records that the job running under ctx has persisted its result.
// From then on a cancel or timeout no longer discards what the job returns.
func Commit(ctx context.Context) {
	if flag, ok := ctx.Value(commitKey{}).(*atomic.Bool); ok {
		flag.Store(true)
	}
}

// JobSnapshot is the externally visible state of a job. Result is only set
// once the job succeeded.
type JobSnapshot struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	Result     any       `json:"result,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

type job struct {
	id        string
	kind      string
	createdAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	// guarded by Jobs.mu
	status     JobStatus
	result     any
	err        error
	finishedAt time.Time
}

// Jobs runs import work off the request goroutine. Each job reaches exactly
// one terminal status and its result is visible only after that.
type Jobs struct {
	mu      sync.Mutex
	jobs    map[string]*job
	timeout time.Duration
	slots   chan struct{}
	logger  *slog.Logger
	now     func() time.Time
}

func NewJobs(timeout time.Duration, workers int, logger *slog.Logger) *Jobs {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{
		jobs:    make(map[string]*job),
		timeout: timeout,
		slots:   make(chan struct{}, workers),
		logger:  logger,
		now:     time.Now,
	}
}

// Submit starts fn in the background and returns the job id. The job is not
// tied to the caller's context; use Cancel or Wait's context to stop it.
func (j *Jobs) Submit(kind string, fn JobFunc) string {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if j.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), j.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	jb := &job{
		id:        uuid.New().String(),
		kind:      kind,
		createdAt: j.now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    JobPending,
	}

	j.mu.Lock()
	j.jobs[jb.id] = jb
	j.mu.Unlock()

	go j.run(ctx, jb, fn)
	return jb.id
}

func (j *Jobs) run(ctx context.Context, jb *job, fn JobFunc) {
	defer jb.cancel()

	select {
	case j.slots <- struct{}{}:
		defer func() { <-j.slots }()
	case <-ctx.Done():
		j.finish(jb, nil, ctx.Err())
		return
	}

	j.mu.Lock()
	jb.status = JobRunning
	j.mu.Unlock()

	committed := new(atomic.Bool)
	ctx = context.WithValue(ctx, commitKey{}, committed)
	result, err := func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("import job panicked: %v", r)
			}
		}()
		return fn(ctx)
	}()

	// a late result after cancellation or timeout is discarded unless the
	// job already committed it
	if ctxErr := ctx.Err(); ctxErr != nil && err == nil && !committed.Load() {
		result, err = nil, ctxErr
	}
	j.finish(jb, result, err)
}

func (j *Jobs) finish(jb *job, result any, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	jb.finishedAt = j.now()
	switch {
	case err == nil:
		jb.status = JobSucceeded
		jb.result = result
	case errors.Is(err, context.DeadlineExceeded):
		jb.status = JobFailed
		jb.err = apperrors.Wrap(apperrors.KindConversionTimeout, err, "%s job timed out", jb.kind)
	case errors.Is(err, context.Canceled):
		jb.status = JobCanceled
		jb.err = err
	default:
		jb.status = JobFailed
		jb.err = err
	}
	close(jb.done)

	j.logger.Info("import job finished",
		"job_id", jb.id,
		"kind", jb.kind,
		"status", jb.status,
		"duration", jb.finishedAt.Sub(jb.createdAt),
	)
}

// Wait blocks until the job ends or ctx is done. A ctx that ends first
// leaves the job running.
func (j *Jobs) Wait(ctx context.Context, id string) (any, error) {
	jb, err := j.get(id)
	if err != nil {
		return nil, err
	}

	select {
	case <-jb.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return jb.result, jb.err
}

// Cancel stops a job. It reports false for unknown or finished jobs.
func (j *Jobs) Cancel(id string) bool {
	jb, err := j.get(id)
	if err != nil {
		return false
	}
	select {
	case <-jb.done:
		return false
	default:
	}
	jb.cancel()
	return true
}

func (j *Jobs) Status(id string) (JobSnapshot, error) {
	jb, err := j.get(id)
	if err != nil {
		return JobSnapshot{}, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	snap := JobSnapshot{
		ID:         jb.id,
		Kind:       jb.kind,
		Status:     jb.status,
		CreatedAt:  jb.createdAt,
		FinishedAt: jb.finishedAt,
	}
	if jb.err != nil {
		snap.Error = jb.err.Error()
	}
	if jb.status == JobSucceeded {
		snap.Result = jb.result
	}
	return snap, nil
}

// Prune forgets finished jobs older than maxAge and returns how many went.
func (j *Jobs) Prune(maxAge time.Duration) int {
	cutoff := j.now().Add(-maxAge)

	j.mu.Lock()
	defer j.mu.Unlock()
	removed := 0
	for id, jb := range j.jobs {
		if !jb.finishedAt.IsZero() && jb.finishedAt.Before(cutoff) {
			delete(j.jobs, id)
			removed++
		}
	}
	return removed
}

func (j *Jobs) get(id string) (*job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	jb, ok := j.jobs[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "import job %s not found", id)
	}
	return jb, nil
}
