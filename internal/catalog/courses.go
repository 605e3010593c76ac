package catalog

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/yungbote/coursegen/internal/apiclient"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

type Courses struct {
	api API
}

func NewCourses(api API) *Courses { return &Courses{api: api} }

func (c *Courses) List(ctx context.Context, page, size int) (*Page[Course], error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 10
	}
	v := url.Values{}
	v.Set("skip", strconv.Itoa((page-1)*size))
	v.Set("limit", strconv.Itoa(size))
	var out Page[Course]
	if err := c.get(ctx, "courses/?"+v.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create uploads in.File as the course's source document.
func (c *Courses) Create(ctx context.Context, in CourseInput) (*Course, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.File == nil || len(in.File.Content) == 0 {
		return nil, apierr.Local("a source file is required")
	}
	file := *in.File
	file.Field = "file"
	form := &apiclient.Form{Fields: in.fields(), Files: []apiclient.FormFile{file}}
	return c.create(ctx, "courses/", form)
}

// CreateByFileID creates a course from a file already uploaded to the backend.
func (c *Courses) CreateByFileID(ctx context.Context, in CourseInput) (*Course, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.FileID <= 0 {
		return nil, apierr.Local("a file id is required")
	}
	fields := in.fields()
	fields["file_id"] = in.FileID
	return c.create(ctx, "courses/by-file-id", &apiclient.Form{Fields: fields})
}

func (c *Courses) create(ctx context.Context, endpoint string, form *apiclient.Form) (*Course, error) {
	var out Course
	if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Endpoint: endpoint, Form: form}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (in CourseInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return apierr.Local("course title is required")
	}
	return nil
}

func (in CourseInput) fields() map[string]any {
	return map[string]any{
		"title":         strings.TrimSpace(in.Title),
		"description":   in.Description,
		"thumbnail_url": NormalizeThumbnailURL(in.ThumbnailURL),
	}
}

// NormalizeThumbnailURL prefixes https:// onto a bare host or path. Empty
// stays empty.
func NormalizeThumbnailURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "http") {
		return raw
	}
	return "https://" + raw
}

func (c *Courses) Get(ctx context.Context, courseID int64) (*Course, error) {
	var out Course
	if err := c.get(ctx, "courses/"+id(courseID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Courses) Delete(ctx context.Context, courseID int64) error {
	return c.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Endpoint: "courses/" + id(courseID)}, nil)
}

func (c *Courses) ListPublished(ctx context.Context, page, perPage int) (*Page[Course], error) {
	q := Query{Page: page, PerPage: perPage}.withDefaults()
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("per_page", strconv.Itoa(q.PerPage))
	var out Page[Course]
	if err := c.get(ctx, "courses/public/courses?"+v.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchPublished matches published course titles against query.
func (c *Courses) SearchPublished(ctx context.Context, query string, page, perPage int) (*Page[Course], error) {
	q := Query{Page: page, PerPage: perPage}.withDefaults()
	v := url.Values{}
	v.Set("query", query)
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("per_page", strconv.Itoa(q.PerPage))
	var out Page[Course]
	if err := c.get(ctx, "courses/public/courses/search?"+v.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Courses) Publish(ctx context.Context, courseID int64) (*Course, error) {
	var out Course
	if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodPut, Endpoint: "publish?course_id=" + id(courseID)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Courses) Unpublish(ctx context.Context, courseID int64) (*Course, error) {
	var out Course
	if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodPut, Endpoint: "unpublish?course_id=" + id(courseID)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateTOC asks the backend to derive modules and units from the course's
// source file. The response shape is backend-defined.
func (c *Courses) GenerateTOC(ctx context.Context, courseID int64) (map[string]any, error) {
	var out map[string]any
	if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Endpoint: "generate-toc?course_id=" + id(courseID)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Courses) ClearTOC(ctx context.Context, courseID int64) error {
	return c.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Endpoint: "clear-toc?course_id=" + id(courseID)}, nil)
}

func (c *Courses) ClearModuleContents(ctx context.Context, moduleID int64) error {
	return c.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Endpoint: "clear-module-contents?module_id=" + id(moduleID)}, nil)
}

func (c *Courses) ListModules(ctx context.Context, courseID int64, q Query) (*Page[Module], error) {
	v := q.values(url.Values{"course_id": {id(courseID)}})
	var out Page[Module]
	if err := c.get(ctx, "courses/public/modules?"+v.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Courses) ListUnits(ctx context.Context, courseID, moduleID int64, q Query) (*Page[Unit], error) {
	v := q.values(url.Values{"course_id": {id(courseID)}, "module_id": {id(moduleID)}})
	var out Page[Unit]
	if err := c.get(ctx, "courses/units?"+v.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Courses) get(ctx context.Context, endpoint string, out any) error {
	return c.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Endpoint: endpoint}, out)
}
