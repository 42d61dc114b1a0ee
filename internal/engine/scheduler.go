package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"db-sync/internal/datasource"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Worker runs tasks by index. A worker is used by one goroutine at a time.
type Worker interface {
	Do(ctx context.Context, i int)
	Close()
}

// Executor is the concurrency strategy for a run, chosen once.
type Executor interface {
	// Execute dispatches indexes 0..n-1 in order until stopped reports true,
	// and returns once every dispatched index has been processed.
	Execute(ctx context.Context, n int, stopped func() bool, newWorker func() Worker)
	Size() int
}

type SequentialExecutor struct{}

func (SequentialExecutor) Size() int { return 1 }

func (SequentialExecutor) Execute(ctx context.Context, n int, stopped func() bool, newWorker func() Worker) {
	w := newWorker()
	defer w.Close()
	for i := 0; i < n; i++ {
		if stopped() || ctx.Err() != nil {
			return
		}
		w.Do(ctx, i)
	}
}

// PoolExecutor runs a fixed number of goroutine workers, each owning its
// own connections.
type PoolExecutor struct {
	Workers int
}

func (p PoolExecutor) Size() int { return p.Workers }

func (p PoolExecutor) Execute(ctx context.Context, n int, stopped func() bool, newWorker func() Worker) {
	size := p.Workers
	if size > n {
		size = n
	}
	if size < 1 {
		size = 1
	}

	queue := make(chan int)
	var g errgroup.Group
	for w := 0; w < size; w++ {
		g.Go(func() error {
			worker := newWorker()
			defer worker.Close()
			for i := range queue {
				worker.Do(ctx, i)
			}
			return nil
		})
	}

	for i := 0; i < n; i++ {
		if stopped() || ctx.Err() != nil {
			break
		}
		queue <- i
	}
	close(queue)
	_ = g.Wait()
}

// SelectExecutor picks the executor for a run. Debug, batch mode and any
// relaxation mode force sequential execution on the coordinator's
// connections.
func SelectExecutor(opts RunOptions, mode DeferralMode, platform Platform, logger zerolog.Logger) Executor {
	if opts.Debug || opts.InBatches || mode != ModeNone {
		if opts.Jobs > 0 {
			logger.Warn().Int("jobs", opts.Jobs).Msg("--jobs ignored")
		}
		return SequentialExecutor{}
	}

	jobs := opts.Jobs
	if jobs == 0 {
		if platform.ForkCapable {
			return SequentialExecutor{}
		}
		jobs = platform.DefaultJobs
	}
	if jobs <= 1 {
		return SequentialExecutor{}
	}
	return PoolExecutor{Workers: jobs}
}

// Outcome is a settled task.
type Outcome struct {
	Task   *SyncTask
	Result Result
}

// Scheduler dispatches tasks through an Executor and reports progress.
type Scheduler struct {
	Source      *datasource.DataSource
	Destination *datasource.DataSource
	Executor    Executor
	Listener    Listener
	FailFast    bool
	Logger      zerolog.Logger
}

// Run executes tasks and returns outcomes in completion order. Tasks that
// were never dispatched have no outcome. When shared is non-nil every task
// runs on those connections instead of worker sessions.
func (s *Scheduler) Run(ctx context.Context, tasks []*SyncTask, shared *Conns) []Outcome {
	run := &schedulerRun{s: s, tasks: tasks, shared: shared}
	for _, t := range tasks {
		s.Listener.Registered(t.Table)
	}
	s.Executor.Execute(ctx, len(tasks), run.stopped.Load, run.newWorker)
	return run.outcomes
}

type schedulerRun struct {
	s       *Scheduler
	tasks   []*SyncTask
	shared  *Conns
	stopped atomic.Bool

	mu       sync.Mutex
	outcomes []Outcome
}

func (r *schedulerRun) newWorker() Worker {
	w := &taskWorker{run: r}
	if r.shared == nil {
		w.source = r.s.Source.Session()
		w.destination = r.s.Destination.Session()
	}
	return w
}

func (r *schedulerRun) record(task *SyncTask, res Result) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, Outcome{Task: task, Result: res})
	r.mu.Unlock()
	if res.Failed() && r.s.FailFast {
		r.stopped.Store(true)
	}
}

type taskWorker struct {
	run         *schedulerRun
	source      *datasource.Session
	destination *datasource.Session
}

func (w *taskWorker) Do(ctx context.Context, i int) {
	if w.run.stopped.Load() {
		return
	}
	task := w.run.tasks[i]
	listener := w.run.s.Listener

	listener.Started(task.Table)
	start := time.Now()

	var res Result
	conns, err := w.conns(ctx)
	if err != nil {
		res = failed(task.Table, err, nil)
	} else {
		res = task.Perform(ctx, conns)
	}

	elapsed := time.Since(start)
	w.run.record(task, res)
	listener.Finished(task.Table, res, elapsed)
}

func (w *taskWorker) conns(ctx context.Context) (Conns, error) {
	if w.run.shared != nil {
		return *w.run.shared, nil
	}
	if err := w.source.ReconnectIfNeeded(ctx); err != nil {
		return Conns{}, err
	}
	if err := w.destination.ReconnectIfNeeded(ctx); err != nil {
		return Conns{}, err
	}
	return Conns{Source: w.source, Destination: w.destination}, nil
}

func (w *taskWorker) Close() {
	if w.source != nil {
		w.source.Close()
	}
	if w.destination != nil {
		w.destination.Close()
	}
}
