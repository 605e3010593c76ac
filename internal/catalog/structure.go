package catalog

import (
	"context"
	"net/http"
	"strings"

	"github.com/yungbote/coursegen/internal/apiclient"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

// Structure edits the modules and units of a course.
type Structure struct {
	api API
}

func NewStructure(api API) *Structure { return &Structure{api: api} }

func (s *Structure) CreateModule(ctx context.Context, courseID int64, in ModuleInput) (*Module, error) {
	if courseID <= 0 {
		return nil, apierr.Local("select a course")
	}
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, apierr.Local("module title is required")
	}
	var out Module
	req := apiclient.Request{Method: http.MethodPost, Endpoint: "courses/public/modules?course_id=" + id(courseID), Body: in}
	if err := s.api.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Structure) UpdateModule(ctx context.Context, moduleID int64, in ModuleInput) (*Module, error) {
	var out Module
	req := apiclient.Request{Method: http.MethodPut, Endpoint: "courses/public/modules/" + id(moduleID), Body: in}
	if err := s.api.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Structure) DeleteModule(ctx context.Context, moduleID int64) error {
	return s.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Endpoint: "courses/public/modules/" + id(moduleID)}, nil)
}

func (s *Structure) CreateUnit(ctx context.Context, in UnitInput) (*Unit, error) {
	if in.ModuleID <= 0 {
		return nil, apierr.Local("select a module")
	}
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, apierr.Local("unit title is required")
	}
	var out Unit
	if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Endpoint: "courses/public/units", Body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUnit never moves a unit between modules.
func (s *Structure) UpdateUnit(ctx context.Context, unitID int64, in UnitInput) (*Unit, error) {
	in.ModuleID = 0
	var out Unit
	if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPut, Endpoint: "courses/units/" + id(unitID), Body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Structure) DeleteUnit(ctx context.Context, unitID int64) error {
	return s.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Endpoint: "courses/public/units/" + id(unitID)}, nil)
}
