package generation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/coursegen/internal/notify"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/httpx"
	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/progress"
)

const (
	MessageStarting = "starting"

	msgBatchStarted   = "Batch generation started"
	msgBatchCompleted = "Batch generation completed successfully"
	msgBatchFailed    = "Batch generation failed: "
	msgChannelError   = "Error connecting to generation service"
	msgStartFailed    = "Error starting batch generation: "
	maxTitleInNotice  = 30
)

// BatchState is the view state of a batch generator.
type BatchState struct {
	Busy     bool            `json:"busy"`
	Progress float64         `json:"progress"`
	Message  string          `json:"message"`
	Status   progress.Status `json:"status"`
	BatchID  string          `json:"batch_id,omitempty"`
	Strategy string          `json:"strategy,omitempty"`
}

type BatchOption func(*BatchGenerator)

// WithStrategy registers s, replacing any strategy with the same name.
func WithStrategy(s Strategy) BatchOption {
	return func(g *BatchGenerator) { g.strategies[s.Name()] = s }
}

// WithOnUpdate registers fn to receive every state change, in order.
func WithOnUpdate(fn func(BatchState)) BatchOption {
	return func(g *BatchGenerator) { g.onUpdate = fn }
}

// BatchGenerator starts module and course batch jobs and follows their
// progress. At most one job is tracked at a time; starting another closes the
// previous job's channel first.
type BatchGenerator struct {
	strategies map[string]Strategy
	dialer     progress.Dialer
	notifier   notify.Notifier
	log        *logger.Logger
	tracer     trace.Tracer
	onUpdate   func(BatchState)

	mu    sync.Mutex
	state BatchState
	run   *batchRun
	seq   uint64
}

type batchRun struct {
	id       uint64
	ch       progress.Channel
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

func (r *batchRun) finish() { r.doneOnce.Do(func() { close(r.done) }) }

func NewBatchGenerator(api API, dialer progress.Dialer, notifier notify.Notifier, log *logger.Logger, opts ...BatchOption) *BatchGenerator {
	if log == nil {
		log = logger.NewNop()
	}
	if notifier == nil {
		notifier = notify.Multi{}
	}
	g := &BatchGenerator{
		strategies: map[string]Strategy{},
		dialer:     dialer,
		notifier:   notifier,
		log:        log.With("component", "BatchGenerator"),
		tracer:     otel.Tracer("github.com/yungbote/coursegen/internal/generation"),
	}
	if api != nil {
		for _, s := range []Strategy{NewAIBatch(api), NewModuleContents(api), NewCourseContents(api)} {
			g.strategies[s.Name()] = s
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *BatchGenerator) State() BatchState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Done is closed when the current job settles or is closed. It is already
// closed when no job has been started.
func (g *BatchGenerator) Done() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return g.run.done
}

func (g *BatchGenerator) Wait(ctx context.Context) (BatchState, error) {
	select {
	case <-g.Done():
		return g.State(), nil
	case <-ctx.Done():
		return g.State(), ctx.Err()
	}
}

// Start validates req, starts the job and, when the job reports a batch id,
// follows its progress channel in the background. It returns once the job is
// started or has failed to start.
func (g *BatchGenerator) Start(ctx context.Context, req BatchRequest) error {
	if err := req.validate(); err != nil {
		g.notify(ctx, notify.LevelError, err.Error())
		return err
	}
	name := selectStrategy(req)
	strategy, ok := g.strategies[name]
	if !ok {
		err := apierr.Local(fmt.Sprintf("unknown batch strategy %q", name))
		g.notify(ctx, notify.LevelError, err.Error())
		return err
	}

	ctx, span := g.tracer.Start(ctx, "generation.batch.start", trace.WithAttributes(
		attribute.String("coursegen.strategy", name),
		attribute.String("coursegen.scope", string(req.Scope)),
		attribute.Int64("coursegen.target_id", req.TargetID),
	))
	defer span.End()

	run := g.begin(name)

	job, err := strategy.Start(ctx, req)
	if err != nil {
		span.RecordError(err)
		g.log.Warn("batch start failed", "strategy", name, "target_id", req.TargetID, "status", httpx.StatusCode(err), "error", err)
		span.SetStatus(codes.Error, "start failed")
		if g.settle(run, func(s *BatchState) { s.Busy = false }) {
			g.notify(ctx, notify.LevelError, startFailureMessage(err))
		}
		return err
	}

	if job.BatchID == "" {
		if g.settle(run, func(s *BatchState) {
			s.Busy = false
			s.Message = job.Message
		}) {
			g.notify(ctx, notify.LevelSuccess, "Content generation started for "+noticeTitle(req))
		}
		return nil
	}
	span.SetAttributes(attribute.String("coursegen.batch_id", job.BatchID))

	ch, err := g.dialer.Dial(ctx, job.BatchID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		if g.settle(run, func(s *BatchState) { s.Busy = false; s.BatchID = job.BatchID }) {
			g.notify(ctx, notify.LevelError, msgChannelError)
		}
		return err
	}

	g.mu.Lock()
	if g.run != run || run.closed {
		g.mu.Unlock()
		_ = ch.Close()
		g.log.Debug("batch superseded before its channel opened", "batch_id", job.BatchID)
		return nil
	}
	run.ch = ch
	g.state.BatchID = job.BatchID
	g.state.Progress = 0
	g.state.Message = MessageStarting
	snap := g.state
	g.mu.Unlock()
	g.emit(snap)

	g.log.Info("batch started", "batch_id", job.BatchID, "strategy", name, "target_id", req.TargetID)
	g.notify(ctx, notify.LevelSuccess, msgBatchStarted)
	go g.consume(context.WithoutCancel(ctx), run, ch)
	return nil
}

// Close stops following the current job and closes its channel. Events that
// arrive afterwards are ignored.
func (g *BatchGenerator) Close() error {
	g.mu.Lock()
	run := g.run
	if run == nil || run.closed {
		g.mu.Unlock()
		return nil
	}
	run.closed = true
	g.state.Busy = false
	ch := run.ch
	snap := g.state
	g.mu.Unlock()

	g.emit(snap)
	var err error
	if ch != nil {
		err = ch.Close()
	}
	run.finish()
	return err
}

// begin ends any live run and installs a new one in the same critical section,
// so two concurrent Starts can never leave a channel unowned.
func (g *BatchGenerator) begin(strategy string) *batchRun {
	g.mu.Lock()
	prev := g.run
	var prevCh progress.Channel
	if prev != nil && !prev.closed {
		prev.closed = true
		prevCh = prev.ch
	}
	g.seq++
	run := &batchRun{id: g.seq, done: make(chan struct{})}
	g.run = run
	g.state = BatchState{Busy: true, Message: "Starting batch generation...", Strategy: strategy}
	snap := g.state
	g.mu.Unlock()

	if prevCh != nil {
		if err := prevCh.Close(); err != nil {
			g.log.Debug("closing superseded channel", "error", err)
		}
	}
	if prev != nil {
		prev.finish()
	}
	g.emit(snap)
	return run
}

// settle applies fn and ends run if it is still the live run. It reports
// whether it did.
func (g *BatchGenerator) settle(run *batchRun, fn func(*BatchState)) bool {
	g.mu.Lock()
	if g.run != run || run.closed {
		g.mu.Unlock()
		return false
	}
	run.closed = true
	fn(&g.state)
	snap := g.state
	g.mu.Unlock()
	g.emit(snap)
	run.finish()
	return true
}

func (g *BatchGenerator) consume(ctx context.Context, run *batchRun, ch progress.Channel) {
	log := g.log.With("run", run.id)
	for ev := range ch.Events() {
		g.mu.Lock()
		if g.run != run || run.closed {
			g.mu.Unlock()
			log.Debug("dropping event for closed run", "status", ev.Status)
			_ = ch.Close()
			return
		}
		g.state.Progress = ev.Progress
		g.state.Message = ev.Message
		g.state.Status = ev.Status
		terminal := ev.Terminal()
		if terminal {
			g.state.Busy = false
			run.closed = true
		}
		snap := g.state
		g.mu.Unlock()
		g.emit(snap)

		if !terminal {
			continue
		}
		if ev.Status == progress.StatusCompleted {
			g.notify(ctx, notify.LevelSuccess, msgBatchCompleted)
		} else {
			g.notify(ctx, notify.LevelError, msgBatchFailed+ev.Message)
		}
		_ = ch.Close()
		run.finish()
		return
	}

	g.mu.Lock()
	if g.run != run || run.closed {
		g.mu.Unlock()
		_ = ch.Close()
		return
	}
	run.closed = true
	g.state.Busy = false
	snap := g.state
	g.mu.Unlock()
	g.emit(snap)

	log.Warn("progress channel ended before completion", "error", ch.Err())
	g.notify(ctx, notify.LevelError, msgChannelError)
	_ = ch.Close()
	run.finish()
}

func (g *BatchGenerator) emit(s BatchState) {
	if g.onUpdate != nil {
		g.onUpdate(s)
	}
}

func (g *BatchGenerator) notify(ctx context.Context, level notify.Level, msg string) {
	if err := g.notifier.Notify(ctx, notify.New(level, "batch", msg)); err != nil {
		g.log.Warn("notify failed", "error", err)
	}
}

var rejectedContent = regexp.MustCompile(`content\s*\{([^}]*)\}`)

func startFailureMessage(err error) string {
	if apierr.KindOf(err) == apierr.KindGeneration || strings.Contains(err.Error(), "Failed to generate content") {
		if m := rejectedContent.FindStringSubmatch(err.Error()); len(m) == 2 && strings.TrimSpace(m[1]) != "" {
			return "Content generation failed: " + strings.TrimSpace(m[1])
		}
		return "Failed to generate content. Please try again."
	}
	return msgStartFailed + err.Error()
}

func noticeTitle(req BatchRequest) string {
	title := strings.TrimSpace(req.TargetTitle)
	if title == "" {
		if req.Scope == ScopeCourse {
			title = fmt.Sprintf("Course %d", req.TargetID)
		} else {
			title = fmt.Sprintf("Module %d", req.TargetID)
		}
	}
	if r := []rune(title); len(r) > maxTitleInNotice {
		return string(r[:maxTitleInNotice]) + "..."
	}
	return title
}
