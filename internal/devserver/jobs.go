package devserver

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yungbote/coursegen/internal/platform/ctxutil"
	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/progress"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second

	defaultJobRetention = 10 * time.Minute
)

type jobStep struct {
	label string
	run   func() error
}

// job records every progress event so a late subscriber replays from the start.
type job struct {
	mu      sync.Mutex
	events  []progress.Event
	changed chan struct{}
	done    bool
}

func newJob() *job { return &job{changed: make(chan struct{})} }

func (j *job) append(ev progress.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done {
		return
	}
	j.events = append(j.events, ev)
	j.done = ev.Terminal()
	close(j.changed)
	j.changed = make(chan struct{})
}

// since returns events from index i on, a channel closed at the next append,
// and whether the job has ended.
func (j *job) since(i int) ([]progress.Event, <-chan struct{}, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []progress.Event
	if i < len(j.events) {
		out = append(out, j.events[i:]...)
	}
	return out, j.changed, j.done
}

// Jobs runs simulated batch jobs, one goroutine each. A finished job stays
// readable for the retention period and is then forgotten.
type Jobs struct {
	log    *logger.Logger
	delay  time.Duration
	retain time.Duration
	ctx    context.Context
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*job
}

func NewJobs(ctx context.Context, log *logger.Logger, delay, retain time.Duration) *Jobs {
	if retain <= 0 {
		retain = defaultJobRetention
	}
	return &Jobs{
		log:    log.With("component", "Jobs"),
		delay:  delay,
		retain: retain,
		ctx:    ctx,
		jobs:   map[string]*job{},
	}
}

func (js *Jobs) get(id string) (*job, bool) {
	js.mu.Lock()
	defer js.mu.Unlock()
	j, ok := js.jobs[id]
	return j, ok
}

// Start registers a job for steps and returns its batch id. Correlation ids
// in ctx are carried into the job's log lines.
func (js *Jobs) Start(ctx context.Context, title string, steps []jobStep) string {
	id := uuid.New().String()
	j := newJob()
	js.mu.Lock()
	js.jobs[id] = j
	js.mu.Unlock()

	log := js.log.With(ctxutil.LogFields(ctx)...).With("batch_id", id)
	js.wg.Add(1)
	go func() {
		defer js.wg.Done()
		js.run(log, title, j, steps)
		time.AfterFunc(js.retain, func() { js.evict(id) })
	}()
	return id
}

func (js *Jobs) evict(id string) {
	js.mu.Lock()
	delete(js.jobs, id)
	js.mu.Unlock()
	js.log.Debug("batch evicted", "batch_id", id)
}

// Len reports how many jobs are currently retained.
func (js *Jobs) Len() int {
	js.mu.Lock()
	defer js.mu.Unlock()
	return len(js.jobs)
}

// Wait blocks until every started job has returned.
func (js *Jobs) Wait() { js.wg.Wait() }

func (js *Jobs) run(log *logger.Logger, title string, j *job, steps []jobStep) {
	if len(steps) == 0 {
		j.append(progress.Event{Progress: 0, Message: title + " has no units to generate", Status: progress.StatusFailed})
		log.Warn("batch has no steps")
		return
	}
	for i, step := range steps {
		select {
		case <-js.ctx.Done():
			j.append(progress.Event{Progress: percent(i, len(steps)), Message: "Server shutting down", Status: progress.StatusFailed})
			return
		case <-time.After(js.delay):
		}
		if err := step.run(); err != nil {
			log.Warn("batch step failed", "step", step.label, "error", err)
			j.append(progress.Event{Progress: percent(i, len(steps)), Message: err.Error(), Status: progress.StatusFailed})
			return
		}
		j.append(progress.Event{Progress: percent(i+1, len(steps)), Message: step.label, Status: progress.StatusRunning})
	}
	j.append(progress.Event{Progress: 100, Message: "Batch generation completed", Status: progress.StatusCompleted})
	log.Info("batch completed", "steps", len(steps))
}

func percent(done, total int) float64 {
	return math.Round(float64(done)/float64(total)*1000) / 10
}

// streamProgress upgrades to a websocket and writes the job's events until it
// ends or the client goes away.
func (s *Server) streamProgress(c *gin.Context) {
	j, ok := s.jobs.get(c.Param("batch_id"))
	if !ok {
		detail(c, http.StatusNotFound, "Batch not found")
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	cursor := 0
	for {
		events, changed, done := j.since(cursor)
		for _, ev := range events {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
		cursor += len(events)
		if done {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		select {
		case <-changed:
		case <-gone:
			return
		case <-s.ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
