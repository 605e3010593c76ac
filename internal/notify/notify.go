// Package notify delivers transient user-facing notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/platform/logger"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notification struct {
	ID      uuid.UUID `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	// Source names the orchestrator that raised it, e.g. "batch".
	Source string    `json:"source,omitempty"`
	At     time.Time `json:"at"`
}

func New(level Level, source, message string) Notification {
	return Notification{ID: uuid.New(), Level: level, Message: message, Source: source, At: time.Now().UTC()}
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Console writes one line per notification.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console { return &Console{w: w} }

func (c *Console) Notify(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "[%s] %s\n", n.Level, n.Message)
	return err
}

type Log struct {
	log *logger.Logger
}

func NewLog(log *logger.Logger) *Log {
	return &Log{log: log.With("component", "notify")}
}

func (l *Log) Notify(_ context.Context, n Notification) error {
	kv := []interface{}{"id", n.ID.String(), "source", n.Source, "message", n.Message}
	if n.Level == LevelError {
		l.log.Warn("notification", kv...)
	} else {
		l.log.Info("notification", kv...)
	}
	return nil
}

// Multi fans out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if nt == nil {
			continue
		}
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}
