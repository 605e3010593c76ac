package generation

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/yungbote/coursegen/internal/apiclient"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

// API is the subset of the request client the generators need.
type API interface {
	Do(ctx context.Context, r apiclient.Request, out any) error
}

type Scope string

const (
	ScopeModule Scope = "module"
	ScopeCourse Scope = "course"
)

// Batch selection types. "content" runs the full content pipeline; the other
// three run the AI batch pipeline for supplementary material.
const (
	TypeContent  = "content"
	TypeSummary  = "summary"
	TypeExample  = "example"
	TypeExercise = "exercise"
)

const (
	StrategyAIBatch        = "ai-batch"
	StrategyModuleContents = "module-contents"
	StrategyCourseContents = "course-contents"
)

type BatchRequest struct {
	Scope    Scope
	TargetID int64
	// TargetTitle is only used in notifications.
	TargetTitle string
	Types       []string
	Options     Options
	// Strategy forces a named strategy instead of selecting one from Types.
	Strategy string
}

// Job is what a strategy learned from a successful batch start. BatchID is
// empty for strategies whose endpoint does not stream progress.
type Job struct {
	BatchID  string
	Strategy string
	Message  string
}

type Strategy interface {
	Name() string
	Start(ctx context.Context, req BatchRequest) (Job, error)
}

func (r BatchRequest) validate() error {
	if r.TargetID <= 0 {
		if r.Scope == ScopeCourse {
			return apierr.Local("select a course")
		}
		return apierr.Local("select a module")
	}
	if len(r.Types) == 0 {
		return apierr.Local("select at least one type")
	}
	seen := map[string]bool{}
	for _, t := range r.Types {
		switch t {
		case TypeContent, TypeSummary, TypeExample, TypeExercise:
		default:
			return apierr.Local(fmt.Sprintf("unknown generation type %q", t))
		}
		seen[t] = true
	}
	if seen[TypeContent] && len(seen) > 1 {
		return apierr.Local("content cannot be combined with summary, example or exercise")
	}
	if r.Scope == ScopeCourse && !seen[TypeContent] {
		return apierr.Local("course batches only generate content")
	}
	return r.Options.Validate()
}

func selectStrategy(r BatchRequest) string {
	if r.Strategy != "" {
		return r.Strategy
	}
	if r.Scope == ScopeCourse {
		return StrategyCourseContents
	}
	if len(r.Types) == 1 && r.Types[0] == TypeContent {
		return StrategyModuleContents
	}
	return StrategyAIBatch
}

// AIBatch starts a module job that reports progress under a batch id.
type AIBatch struct{ api API }

func NewAIBatch(api API) *AIBatch { return &AIBatch{api: api} }

func (s *AIBatch) Name() string { return StrategyAIBatch }

func (s *AIBatch) Start(ctx context.Context, req BatchRequest) (Job, error) {
	types := dedupe(req.Types)
	endpoint := "ai/generate/batch?module_id=" + strconv.FormatInt(req.TargetID, 10) +
		"&generation_types=" + strings.Join(types, ",")
	var out struct {
		Data struct {
			BatchID string `json:"batch_id"`
		} `json:"data"`
		Message string `json:"message"`
	}
	if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Endpoint: endpoint}, &out); err != nil {
		return Job{}, err
	}
	if strings.TrimSpace(out.Data.BatchID) == "" {
		return Job{}, &apierr.Error{Kind: apierr.KindAPI, Endpoint: endpoint, Message: "batch start response missing batch_id"}
	}
	return Job{BatchID: out.Data.BatchID, Strategy: s.Name(), Message: out.Message}, nil
}

// ModuleContents runs content generation for every unit of a module. The
// endpoint acknowledges with a message and no batch id.
type ModuleContents struct{ api API }

func NewModuleContents(api API) *ModuleContents { return &ModuleContents{api: api} }

func (s *ModuleContents) Name() string { return StrategyModuleContents }

func (s *ModuleContents) Start(ctx context.Context, req BatchRequest) (Job, error) {
	endpoint := "contents/batch-generate?module_id=" + strconv.FormatInt(req.TargetID, 10)
	return startAcknowledged(ctx, s.api, s.Name(), endpoint, req.Options)
}

// CourseContents runs content generation for every module of a course.
type CourseContents struct{ api API }

func NewCourseContents(api API) *CourseContents { return &CourseContents{api: api} }

func (s *CourseContents) Name() string { return StrategyCourseContents }

func (s *CourseContents) Start(ctx context.Context, req BatchRequest) (Job, error) {
	endpoint := "batch-generate-all?course_id=" + strconv.FormatInt(req.TargetID, 10)
	return startAcknowledged(ctx, s.api, s.Name(), endpoint, req.Options)
}

func startAcknowledged(ctx context.Context, api API, name, endpoint string, opts Options) (Job, error) {
	var out struct {
		Message string `json:"message"`
		BatchID string `json:"batch_id"`
	}
	if err := api.Do(ctx, apiclient.Request{Method: http.MethodPost, Endpoint: endpoint, Body: opts.WithDefaults()}, &out); err != nil {
		return Job{}, err
	}
	return Job{BatchID: out.BatchID, Strategy: name, Message: out.Message}, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
