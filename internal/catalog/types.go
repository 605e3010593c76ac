// Package catalog reads and mutates the course hierarchy through the request
// client. The backend owns every entity; nothing here is cached beyond the
// page a view is currently showing.
package catalog

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/yungbote/coursegen/internal/apiclient"
)

// API is the subset of the request client the catalog needs.
type API interface {
	Do(ctx context.Context, r apiclient.Request, out any) error
}

type Course struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	FileID       int64      `json:"file_id"`
	Title        string     `json:"title"`
	Description  *string    `json:"description"`
	ThumbnailURL *string    `json:"thumbnail_url"`
	IsPublished  bool       `json:"is_published"`
	Username     *string    `json:"username"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

type Module struct {
	ID          int64      `json:"id"`
	CourseID    int64      `json:"course_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Order       int        `json:"order"`
	Units       []Unit     `json:"units,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

type Unit struct {
	ID          int64      `json:"id"`
	ModuleID    int64      `json:"module_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Order       int        `json:"order"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

type ContentMetadata struct {
	ContentType      string `json:"content_type,omitempty"`
	CustomPrompt     string `json:"custom_prompt,omitempty"`
	IncludeExamples  bool   `json:"include_examples,omitempty"`
	IncludeExercises bool   `json:"include_exercises,omitempty"`
	DifficultyLevel  string `json:"difficulty_level,omitempty"`
	Tone             string `json:"tone,omitempty"`
	TargetAudience   string `json:"target_audience,omitempty"`
}

type Content struct {
	ID              int64            `json:"id"`
	UnitID          int64            `json:"unit_id"`
	Title           string           `json:"title"`
	ContentType     string           `json:"content_type"`
	Content         string           `json:"content"`
	Order           int              `json:"order"`
	IsAIGenerated   bool             `json:"is_ai_generated"`
	AIPrompt        *string          `json:"ai_prompt"`
	PageReference   *string          `json:"page_reference"`
	ContentMetadata *ContentMetadata `json:"content_metadata,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       *time.Time       `json:"updated_at"`
}

type ContentInput struct {
	UnitID        int64   `json:"unit_id,omitempty"`
	Title         *string `json:"title,omitempty"`
	ContentType   *string `json:"content_type,omitempty"`
	Content       *string `json:"content,omitempty"`
	Order         *int    `json:"order,omitempty"`
	IsAIGenerated *bool   `json:"is_ai_generated,omitempty"`
	AIPrompt      *string `json:"ai_prompt,omitempty"`
	PageReference *string `json:"page_reference,omitempty"`
}

// CourseInput describes a new course. Create uploads File; CreateByFileID
// points at a file the backend already holds.
type CourseInput struct {
	Title        string
	Description  string
	ThumbnailURL string
	File         *apiclient.FormFile
	FileID       int64
}

// ModuleInput is a partial module body; nil fields are left unchanged.
type ModuleInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Order       *int    `json:"order,omitempty"`
}

// UnitInput is a partial unit body. ModuleID is only sent on create.
type UnitInput struct {
	ModuleID    int64   `json:"module_id,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Order       *int    `json:"order,omitempty"`
}

type Page[T any] struct {
	Items      []T  `json:"items"`
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// UnmarshalJSON accepts both a paginated envelope and a bare array.
func (p *Page[T]) UnmarshalJSON(b []byte) error {
	var items []T
	if err := json.Unmarshal(b, &items); err == nil {
		*p = Page[T]{Items: items, Total: len(items), Page: 1, PerPage: len(items), TotalPages: 1}
		return nil
	}
	var env struct {
		Items      []T  `json:"items"`
		Total      int  `json:"total"`
		Page       int  `json:"page"`
		PerPage    int  `json:"per_page"`
		TotalPages int  `json:"total_pages"`
		HasNext    bool `json:"has_next"`
		HasPrev    bool `json:"has_prev"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	*p = Page[T](env)
	return nil
}

type Query struct {
	Page      int
	PerPage   int
	SortBy    string
	SortOrder string
	Search    string
}

func (q Query) withDefaults() Query {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = 10
	}
	if q.SortBy == "" {
		q.SortBy = "order"
	}
	if q.SortOrder == "" {
		q.SortOrder = "asc"
	}
	return q
}

func (q Query) values(extra url.Values) url.Values {
	q = q.withDefaults()
	v := url.Values{}
	for k, vs := range extra {
		v[k] = vs
	}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("per_page", strconv.Itoa(q.PerPage))
	v.Set("sort_by", q.SortBy)
	v.Set("sort_order", q.SortOrder)
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	return v
}

func id(n int64) string { return strconv.FormatInt(n, 10) }
