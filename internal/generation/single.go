package generation

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/coursegen/internal/apiclient"
	"github.com/yungbote/coursegen/internal/catalog"
	"github.com/yungbote/coursegen/internal/notify"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/httpx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

// Refresher reloads whatever view shows a unit's content list.
type Refresher interface {
	RefreshUnit(ctx context.Context, unitID int64) error
}

// Generator runs single-item generation for one unit at a time per call.
// It does not serialize calls for different units.
type Generator struct {
	api       API
	refresher Refresher
	notifier  notify.Notifier
	log       *logger.Logger
	tracer    trace.Tracer

	inFlight atomic.Int32
}

func NewGenerator(api API, refresher Refresher, notifier notify.Notifier, log *logger.Logger) *Generator {
	if log == nil {
		log = logger.NewNop()
	}
	if notifier == nil {
		notifier = notify.Multi{}
	}
	return &Generator{
		api:       api,
		refresher: refresher,
		notifier:  notifier,
		log:       log.With("component", "Generator"),
		tracer:    otel.Tracer("github.com/yungbote/coursegen/internal/generation"),
	}
}

// Generating is true while any call on g is in flight.
func (g *Generator) Generating() bool { return g.inFlight.Load() > 0 }

func (g *Generator) Generate(ctx context.Context, unitID int64, opts Options) (*catalog.Content, error) {
	return g.run(ctx, unitID, 0, opts)
}

func (g *Generator) Regenerate(ctx context.Context, unitID, contentID int64, opts Options) (*catalog.Content, error) {
	if contentID <= 0 {
		g.inFlight.Add(1)
		defer g.inFlight.Add(-1)
		err := apierr.Local("select content to regenerate")
		g.notify(ctx, notify.LevelError, err.Error())
		return nil, err
	}
	return g.run(ctx, unitID, contentID, opts)
}

func (g *Generator) run(ctx context.Context, unitID, contentID int64, opts Options) (*catalog.Content, error) {
	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	if unitID <= 0 {
		err := apierr.Local("select a unit")
		g.notify(ctx, notify.LevelError, err.Error())
		return nil, err
	}

	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		g.notify(ctx, notify.LevelError, err.Error())
		return nil, err
	}
	endpoint := "contents/generate?unit_id=" + strconv.FormatInt(unitID, 10)
	if contentID > 0 {
		endpoint = "contents/" + strconv.FormatInt(contentID, 10) + "/regenerate"
	}

	ctx, span := g.tracer.Start(ctx, "generation.single", trace.WithAttributes(
		attribute.Int64("coursegen.unit_id", unitID),
		attribute.Int64("coursegen.content_id", contentID),
		attribute.String("coursegen.content_type", string(opts.ContentType)),
	))
	defer span.End()

	var out catalog.Content
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Endpoint: endpoint, Body: opts}, &out); err != nil {
		span.RecordError(err)
		g.log.Warn("generation failed", "unit_id", unitID, "content_id", contentID, "status", httpx.StatusCode(err), "error", err)
		g.notify(ctx, notify.LevelError, "Failed to generate content: "+err.Error())
		return nil, err
	}

	if g.refresher != nil {
		if err := g.refresher.RefreshUnit(ctx, unitID); err != nil {
			g.log.Warn("content refresh failed", "unit_id", unitID, "error", err)
			g.notify(ctx, notify.LevelError, "Failed to load content: "+err.Error())
		}
	}
	g.notify(ctx, notify.LevelSuccess, "Content generated successfully")
	return &out, nil
}

func (g *Generator) notify(ctx context.Context, level notify.Level, msg string) {
	if err := g.notifier.Notify(ctx, notify.New(level, "single", msg)); err != nil {
		g.log.Warn("notify failed", "error", err)
	}
}
