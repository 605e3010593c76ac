package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/yungbote/coursegen/internal/apiclient"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func newAPI(t *testing.T, rt roundTripperFunc) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(apiclient.Options{
		BaseURL:    "http://backend.test/api/v1",
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	return c
}

func jsonBody(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestListUnitQuery(t *testing.T) {
	var gotURL string
	api := newAPI(t, func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		return jsonBody(http.StatusOK, `{"items":[{"id":1,"unit_id":7,"title":"Quiz","content_type":"quiz","content":"...","order":1,"is_ai_generated":true,"created_at":"2024-05-01T10:00:00Z","updated_at":null}],"total":1,"page":1,"per_page":10,"total_pages":1,"has_next":false,"has_prev":false}`), nil
	})

	page, err := NewContents(api).ListUnit(context.Background(), 7, Query{})
	if err != nil {
		t.Fatalf("ListUnit: %v", err)
	}
	want := "http://backend.test/api/v1/contents/unit?page=1&per_page=10&sort_by=order&sort_order=asc&unit_id=7"
	if gotURL != want {
		t.Fatalf("url=%s", gotURL)
	}
	if len(page.Items) != 1 || page.Items[0].ContentType != "quiz" || !page.Items[0].IsAIGenerated {
		t.Fatalf("page=%+v", page)
	}
	if page.Items[0].UpdatedAt != nil {
		t.Fatalf("updated_at should be nil")
	}
}

func TestCourseListAcceptsBareArray(t *testing.T) {
	api := newAPI(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.RawQuery != "limit=5&skip=5" {
			t.Errorf("query=%s", req.URL.RawQuery)
		}
		return jsonBody(http.StatusOK, `[{"id":3,"title":"Go"},{"id":4,"title":"Rust"}]`), nil
	})
	page, err := NewCourses(api).List(context.Background(), 2, 5)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 2 || page.Items[1].Title != "Rust" {
		t.Fatalf("page=%+v", page)
	}
}

func TestMutationEndpoints(t *testing.T) {
	type call struct{ method, uri string }
	var calls []call
	api := newAPI(t, func(req *http.Request) (*http.Response, error) {
		calls = append(calls, call{req.Method, req.URL.RequestURI()})
		return jsonBody(http.StatusOK, `{"id":9}`), nil
	})
	ctx := context.Background()
	courses := NewCourses(api)
	if _, err := courses.Publish(ctx, 9); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := courses.ClearModuleContents(ctx, 42); err != nil {
		t.Fatalf("ClearModuleContents: %v", err)
	}
	if _, err := courses.GenerateTOC(ctx, 9); err != nil {
		t.Fatalf("GenerateTOC: %v", err)
	}
	if err := courses.ClearTOC(ctx, 9); err != nil {
		t.Fatalf("ClearTOC: %v", err)
	}
	if err := NewContents(api).Delete(ctx, 5); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	want := []call{
		{"PUT", "/api/v1/publish?course_id=9"},
		{"DELETE", "/api/v1/clear-module-contents?module_id=42"},
		{"POST", "/api/v1/generate-toc?course_id=9"},
		{"DELETE", "/api/v1/clear-toc?course_id=9"},
		{"DELETE", "/api/v1/contents/5"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls=%v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d=%v want=%v", i, calls[i], want[i])
		}
	}
}

func TestUnitViewRefreshReplacesPage(t *testing.T) {
	n := 0
	api := newAPI(t, func(req *http.Request) (*http.Response, error) {
		n++
		if n == 1 {
			return jsonBody(http.StatusOK, `{"items":[{"id":1}],"total":1}`), nil
		}
		return jsonBody(http.StatusOK, `{"items":[{"id":1},{"id":2}],"total":2}`), nil
	})
	view := NewUnitView(NewContents(api), Query{PerPage: 50})
	ctx := context.Background()
	if err := view.RefreshUnit(ctx, 7); err != nil {
		t.Fatalf("RefreshUnit: %v", err)
	}
	if err := view.RefreshUnit(ctx, 7); err != nil {
		t.Fatalf("RefreshUnit: %v", err)
	}
	unit, page := view.Current()
	if unit != 7 || page.Total != 2 || view.Loads() != 2 {
		t.Fatalf("unit=%d page=%+v loads=%d", unit, page, view.Loads())
	}
	view.Reset()
	if _, page := view.Current(); page != nil {
		t.Fatalf("page survived reset")
	}
	if err := view.RefreshUnit(ctx, 0); err == nil {
		t.Fatalf("expected unit id error")
	}
}

func TestCreateUploadsSourceFile(t *testing.T) {
	var form map[string][]string
	var upload string
	api := newAPI(t, func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost || req.URL.Path != "/api/v1/courses/" {
			t.Errorf("request=%s %s", req.Method, req.URL.Path)
		}
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return jsonBody(http.StatusBadRequest, `{}`), nil
		}
		form = req.MultipartForm.Value
		f, hdr, err := req.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return jsonBody(http.StatusBadRequest, `{}`), nil
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		upload = hdr.Filename + ":" + string(b)
		return jsonBody(http.StatusOK, `{"id":11,"title":"Go","file_id":4}`), nil
	})

	course, err := NewCourses(api).Create(context.Background(), CourseInput{
		Title:        " Go ",
		ThumbnailURL: "cdn.example.com/go.png",
		File:         &apiclient.FormFile{Field: "ignored", Filename: "go.pdf", Content: []byte("%PDF")},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if course.ID != 11 || course.FileID != 4 {
		t.Fatalf("course=%+v", course)
	}
	if form["title"][0] != "Go" || form["thumbnail_url"][0] != "https://cdn.example.com/go.png" || form["description"][0] != "" {
		t.Fatalf("form=%v", form)
	}
	if upload != "go.pdf:%PDF" {
		t.Fatalf("upload=%q", upload)
	}
}

func TestCreateByFileIDSendsNoFile(t *testing.T) {
	api := newAPI(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/v1/courses/by-file-id" {
			t.Errorf("path=%s", req.URL.Path)
		}
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		if got := req.FormValue("file_id"); got != "12" {
			t.Errorf("file_id=%q", got)
		}
		if got := req.FormValue("thumbnail_url"); got != "http://img.test/a.png" {
			t.Errorf("thumbnail_url=%q", got)
		}
		if len(req.MultipartForm.File) != 0 {
			t.Errorf("files=%v", req.MultipartForm.File)
		}
		return jsonBody(http.StatusOK, `{"id":12,"file_id":12}`), nil
	})
	course, err := NewCourses(api).CreateByFileID(context.Background(), CourseInput{Title: "Go", ThumbnailURL: "http://img.test/a.png", FileID: 12})
	if err != nil || course.FileID != 12 {
		t.Fatalf("course=%+v err=%v", course, err)
	}
}

func TestCourseInputRejectedLocally(t *testing.T) {
	api := newAPI(t, func(req *http.Request) (*http.Response, error) {
		t.Errorf("unexpected request %s %s", req.Method, req.URL)
		return jsonBody(http.StatusOK, `{}`), nil
	})
	courses := NewCourses(api)
	ctx := context.Background()
	cases := []func() error{
		func() error { _, err := courses.Create(ctx, CourseInput{Title: "Go"}); return err },
		func() error {
			_, err := courses.Create(ctx, CourseInput{File: &apiclient.FormFile{Filename: "a", Content: []byte("x")}})
			return err
		},
		func() error { _, err := courses.CreateByFileID(ctx, CourseInput{Title: "Go"}); return err },
		func() error { _, err := NewStructure(api).CreateModule(ctx, 1, ModuleInput{}); return err },
		func() error { _, err := NewStructure(api).CreateUnit(ctx, UnitInput{Title: strPtr("Intro")}); return err },
	}
	for i, call := range cases {
		if err := call(); !errors.Is(err, apierr.ErrLocalValidation) {
			t.Fatalf("case %d err=%v", i, err)
		}
	}
}

func TestNormalizeThumbnailURL(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"  ":                 "",
		"cdn.test/a.png":     "https://cdn.test/a.png",
		"https://cdn.test/a": "https://cdn.test/a",
		"http://cdn.test/a":  "http://cdn.test/a",
	}
	for in, want := range cases {
		if got := NormalizeThumbnailURL(in); got != want {
			t.Fatalf("NormalizeThumbnailURL(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSearchPublishedQuery(t *testing.T) {
	var got string
	api := newAPI(t, func(req *http.Request) (*http.Response, error) {
		got = req.URL.RequestURI()
		return jsonBody(http.StatusOK, `[{"id":1,"title":"Go & Rust","is_published":true}]`), nil
	})
	page, err := NewCourses(api).SearchPublished(context.Background(), "go & rust", 2, 0)
	if err != nil {
		t.Fatalf("SearchPublished: %v", err)
	}
	if got != "/api/v1/courses/public/courses/search?page=2&per_page=10&query=go+%26+rust" {
		t.Fatalf("uri=%s", got)
	}
	if page.Total != 1 || !page.Items[0].IsPublished {
		t.Fatalf("page=%+v", page)
	}
}

func TestStructureEndpoints(t *testing.T) {
	type call struct{ method, uri, body string }
	var calls []call
	api := newAPI(t, func(req *http.Request) (*http.Response, error) {
		var body string
		if req.Body != nil {
			b, _ := io.ReadAll(req.Body)
			body = string(b)
		}
		calls = append(calls, call{req.Method, req.URL.RequestURI(), body})
		return jsonBody(http.StatusOK, `{"id":5,"title":"x"}`), nil
	})
	ctx := context.Background()
	st := NewStructure(api)
	order := 2
	if _, err := st.CreateModule(ctx, 1, ModuleInput{Title: strPtr("Basics"), Order: &order}); err != nil {
		t.Fatalf("CreateModule: %v", err)
	}
	if _, err := st.UpdateModule(ctx, 5, ModuleInput{Title: strPtr("Renamed")}); err != nil {
		t.Fatalf("UpdateModule: %v", err)
	}
	if err := st.DeleteModule(ctx, 5); err != nil {
		t.Fatalf("DeleteModule: %v", err)
	}
	if _, err := st.CreateUnit(ctx, UnitInput{ModuleID: 5, Title: strPtr("Intro")}); err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}
	if _, err := st.UpdateUnit(ctx, 6, UnitInput{ModuleID: 9, Order: &order}); err != nil {
		t.Fatalf("UpdateUnit: %v", err)
	}
	if err := st.DeleteUnit(ctx, 6); err != nil {
		t.Fatalf("DeleteUnit: %v", err)
	}

	want := []struct{ method, uri string }{
		{"POST", "/api/v1/courses/public/modules?course_id=1"},
		{"PUT", "/api/v1/courses/public/modules/5"},
		{"DELETE", "/api/v1/courses/public/modules/5"},
		{"POST", "/api/v1/courses/public/units"},
		{"PUT", "/api/v1/courses/units/6"},
		{"DELETE", "/api/v1/courses/public/units/6"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls=%v", calls)
	}
	for i := range want {
		if calls[i].method != want[i].method || calls[i].uri != want[i].uri {
			t.Fatalf("call %d=%v want=%v", i, calls[i], want[i])
		}
	}
	var created map[string]any
	if err := json.Unmarshal([]byte(calls[0].body), &created); err != nil || created["title"] != "Basics" || created["order"] != float64(2) {
		t.Fatalf("create module body=%s err=%v", calls[0].body, err)
	}
	var unit map[string]any
	if err := json.Unmarshal([]byte(calls[3].body), &unit); err != nil || unit["module_id"] != float64(5) {
		t.Fatalf("create unit body=%s err=%v", calls[3].body, err)
	}
	if strings.Contains(calls[4].body, "module_id") {
		t.Fatalf("update unit body=%s", calls[4].body)
	}
}

func strPtr(s string) *string { return &s }
