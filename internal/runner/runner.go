// Package runner executes a batch of one or two experiments and merges their
// lifecycle events into a single stream.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Sequela02/ehrlich-sub001/internal/events"
	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
	"github.com/Sequela02/ehrlich-sub001/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxBatch is the largest batch the runner accepts.
const MaxBatch = 2

// ErrBatchSize is returned for empty batches or batches larger than MaxBatch.
var ErrBatchSize = errors.New("batch must contain one or two experiments")

// ErrIncompleteTask is returned when a task lacks its hypothesis or experiment.
var ErrIncompleteTask = errors.New("task needs a hypothesis and an experiment")

// Task is one experiment of a batch.
type Task struct {
	Hypothesis *investigation.Hypothesis
	Experiment *investigation.Experiment
	Design     investigation.ExperimentDesign
	// SiblingContext describes the experiment running alongside this one, if any.
	SiblingContext string
}

// Session drives one experiment's tool-calling loop. Events must be emitted
// from the calling goroutine, in order.
type Session interface {
	Run(ctx context.Context, shared *investigation.Shared, task Task, emit events.Emit) error
}

// SessionFunc adapts a function to Session.
type SessionFunc func(ctx context.Context, shared *investigation.Shared, task Task, emit events.Emit) error

func (f SessionFunc) Run(ctx context.Context, shared *investigation.Shared, task Task, emit events.Emit) error {
	return f(ctx, shared, task, emit)
}

// Result reports how one task ended.
type Result struct {
	ExperimentID string
	HypothesisID string
	Status       investigation.ExperimentStatus
	Err          error
}

// BatchRunner runs experiment batches.
type BatchRunner struct {
	logger  *zap.Logger
	metrics *telemetry.Metrics
	queue   int
}

// Option configures a BatchRunner.
type Option func(*BatchRunner)

func WithLogger(l *zap.Logger) Option {
	return func(r *BatchRunner) {
		if l != nil {
			r.logger = l.Named("runner")
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *BatchRunner) { r.metrics = m }
}

// WithQueueSize sets the buffer of the shared event channel.
func WithQueueSize(n int) Option {
	return func(r *BatchRunner) {
		if n >= 0 {
			r.queue = n
		}
	}
}

// New creates a BatchRunner.
func New(opts ...Option) *BatchRunner {
	r := &BatchRunner{logger: zap.NewNop(), queue: 64}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// item is what a task pushes onto the shared channel; done marks the end of a task.
type item struct {
	ev   events.Event
	done bool
}

// Run executes tasks with session and forwards every event to emit before
// returning. A failing task is recorded as a failed experiment and never
// affects its sibling; the returned error is only ErrBatchSize or
// ErrIncompleteTask, both reported before anything runs.
func (r *BatchRunner) Run(ctx context.Context, session Session, shared *investigation.Shared, tasks []Task, emit events.Emit) ([]Result, error) {
	if len(tasks) == 0 || len(tasks) > MaxBatch {
		return nil, fmt.Errorf("%w: got %d", ErrBatchSize, len(tasks))
	}
	for i, task := range tasks {
		if task.Hypothesis == nil || task.Experiment == nil {
			return nil, fmt.Errorf("%w: task %d", ErrIncompleteTask, i)
		}
	}
	if emit == nil {
		emit = events.Discard
	}
	start := time.Now()
	defer func() { r.metrics.BatchDuration(time.Since(start)) }()

	results := make([]Result, len(tasks))
	if len(tasks) == 1 {
		results[0] = r.runTask(ctx, session, shared, tasks[0], emit)
		return results, nil
	}

	tasks = append([]Task(nil), tasks...)
	tasks[0].SiblingContext = SiblingContext(tasks[1])
	tasks[1].SiblingContext = SiblingContext(tasks[0])

	queue := make(chan item, r.queue)
	var g errgroup.Group
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			defer func() { queue <- item{done: true} }()
			results[i] = r.runTask(ctx, session, shared, task, func(ev events.Event) {
				queue <- item{ev: ev}
			})
			return nil
		})
	}

	for done := 0; done < len(tasks); {
		it := <-queue
		if it.done {
			done++
			continue
		}
		emit(it.ev)
	}
	_ = g.Wait() // failures are captured per task in results
	return results, nil
}

func (r *BatchRunner) runTask(ctx context.Context, session Session, shared *investigation.Shared, task Task, emit events.Emit) Result {
	exp, h := task.Experiment, task.Hypothesis
	res := Result{ExperimentID: exp.ID, HypothesisID: h.ID}

	ctx, span := telemetry.Tracer("runner").Start(ctx, "runner.experiment")
	span.SetAttributes(attribute.String("experiment_id", exp.ID), attribute.String("hypothesis_id", h.ID))
	defer span.End()

	shared.SetExperimentStatus(exp, investigation.ExperimentRunning, "")
	emit(events.ExperimentStarted{
		ExperimentID: exp.ID,
		HypothesisID: h.ID,
		Description:  exp.Description,
		ToolPlan:     append([]string(nil), exp.ToolPlan...),
	})

	err := runSession(ctx, session, shared, task, emit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("experiment failed",
			zap.String("experiment_id", exp.ID),
			zap.String("hypothesis_id", h.ID),
			zap.Error(err))
		shared.SetExperimentStatus(exp, investigation.ExperimentFailed, err.Error())
		r.metrics.Experiment(string(investigation.ExperimentFailed))
		emit(events.ExperimentFailed{ExperimentID: exp.ID, HypothesisID: h.ID, Error: err.Error()})
		res.Status, res.Err = investigation.ExperimentFailed, err
		return res
	}

	shared.SetExperimentStatus(exp, investigation.ExperimentCompleted, "")
	var done events.ExperimentCompleted
	shared.View(func(*investigation.Investigation) {
		done = events.ExperimentCompleted{
			ExperimentID: exp.ID,
			HypothesisID: h.ID,
			Supports:     exp.SupportsHypothesis,
			Conclusion:   exp.Conclusion,
		}
	})
	r.metrics.Experiment(string(investigation.ExperimentCompleted))
	emit(done)
	res.Status = investigation.ExperimentCompleted
	return res
}

func runSession(ctx context.Context, session Session, shared *investigation.Shared, task Task, emit events.Emit) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("experiment panicked: %v\n%s", rec, debug.Stack())
		}
	}()
	return session.Run(ctx, shared, task, emit)
}

// SiblingContext summarises task for the session running next to it.
func SiblingContext(task Task) string {
	var b strings.Builder
	b.WriteString("Another experiment is running in parallel with yours.\n")
	if task.Hypothesis != nil {
		fmt.Fprintf(&b, "Its hypothesis: %s\n", task.Hypothesis.Statement)
	}
	if task.Experiment != nil {
		fmt.Fprintf(&b, "Its experiment: %s\n", task.Experiment.Description)
	}
	plan := task.Design.ToolPlan
	if task.Experiment != nil && len(task.Experiment.ToolPlan) > 0 {
		plan = task.Experiment.ToolPlan
	}
	if len(plan) > 0 {
		fmt.Fprintf(&b, "Its planned tools: %s\n", strings.Join(plan, ", "))
	}
	b.WriteString("Do not repeat its searches; focus on evidence specific to your hypothesis.")
	return b.String()
}
