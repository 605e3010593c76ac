package devserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursegen/internal/catalog"
)

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// fieldProblem is one entry of a FastAPI-style 422 detail list.
type fieldProblem struct {
	Loc  []string       `json:"loc"`
	Msg  string         `json:"msg"`
	Type string         `json:"type"`
	Ctx  map[string]any `json:"ctx,omitempty"`
}

func unprocessable(c *gin.Context, problems ...fieldProblem) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": problems})
}

func queryID(c *gin.Context, name string) (int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		unprocessable(c, fieldProblem{Loc: []string{"query", name}, Msg: "field required", Type: "value_error.missing"})
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		unprocessable(c, fieldProblem{Loc: []string{"query", name}, Msg: "value is not a valid integer", Type: "type_error.integer"})
		return 0, false
	}
	return n, true
}

func paramID(c *gin.Context, name string) (int64, bool) {
	n, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		unprocessable(c, fieldProblem{Loc: []string{"path", name}, Msg: "value is not a valid integer", Type: "type_error.integer"})
		return 0, false
	}
	return n, true
}

func queryInt(c *gin.Context, name string, def int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return n
}

func notFound(c *gin.Context, what string, err error) bool {
	if errors.Is(err, errNotFound) {
		detail(c, http.StatusNotFound, what+" not found")
		return true
	}
	if err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return true
	}
	return false
}

func (s *Server) me(c *gin.Context) {
	claims := claimsFrom(c)
	if claims == nil {
		unauthorized(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       s.auth.userID(claims.Username),
		"username": claims.Username,
		"email":    claims.Username + "@example.com",
	})
}

// login accepts the OAuth2 password form.
func (s *Server) login(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	if username == "" || password == "" {
		unprocessable(c, fieldProblem{Loc: []string{"body", "username"}, Msg: "field required", Type: "value_error.missing"})
		return
	}
	token, err := s.auth.Login(username, password)
	if err != nil {
		c.Header("WWW-Authenticate", "Bearer")
		detail(c, http.StatusUnauthorized, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// listCourses answers with a bare array, the shape the owner listing uses.
func (s *Server) listCourses(c *gin.Context) {
	skip := queryInt(c, "skip", 0)
	limit := queryInt(c, "limit", 100)
	all := s.store.Courses()
	if skip > len(all) {
		skip = len(all)
	}
	end := skip + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	c.JSON(http.StatusOK, all[skip:end])
}

func (s *Server) listPublishedCourses(c *gin.Context) {
	var published []catalog.Course
	for _, course := range s.store.Courses() {
		if course.IsPublished && matches(course.Title, c.Query("search")) {
			published = append(published, course)
		}
	}
	c.JSON(http.StatusOK, paginate(published, queryInt(c, "page", 1), queryInt(c, "per_page", 10)))
}

// searchPublishedCourses answers with a bare array like the original search
// endpoint.
func (s *Server) searchPublishedCourses(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		unprocessable(c, fieldProblem{Loc: []string{"query", "query"}, Msg: "field required", Type: "value_error.missing"})
		return
	}
	var hits []catalog.Course
	for _, course := range s.store.Courses() {
		if course.IsPublished && matches(course.Title, query) {
			hits = append(hits, course)
		}
	}
	c.JSON(http.StatusOK, paginate(hits, queryInt(c, "page", 1), queryInt(c, "per_page", 10)).Items)
}

// createCourse accepts the multipart course form with its source file.
func (s *Server) createCourse(c *gin.Context) {
	course, ok := s.courseForm(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		unprocessable(c, fieldProblem{Loc: []string{"body", "file"}, Msg: "field required", Type: "value_error.missing"})
		return
	}
	course.FileID = s.store.AddFile(fh.Filename)
	created := s.store.InsertCourse(course)
	s.log.Info("course created", "course_id", created.ID, "file", fh.Filename, "size", fh.Size)
	c.JSON(http.StatusOK, created)
}

func (s *Server) createCourseByFileID(c *gin.Context) {
	course, ok := s.courseForm(c)
	if !ok {
		return
	}
	fileID, err := strconv.ParseInt(strings.TrimSpace(c.PostForm("file_id")), 10, 64)
	if err != nil {
		unprocessable(c, fieldProblem{Loc: []string{"body", "file_id"}, Msg: "value is not a valid integer", Type: "type_error.integer"})
		return
	}
	if !s.store.HasFile(fileID) {
		detail(c, http.StatusNotFound, "File not found")
		return
	}
	course.FileID = fileID
	c.JSON(http.StatusOK, s.store.InsertCourse(course))
}

func (s *Server) courseForm(c *gin.Context) (catalog.Course, bool) {
	claims := claimsFrom(c)
	if claims == nil {
		unauthorized(c)
		return catalog.Course{}, false
	}
	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		unprocessable(c, fieldProblem{Loc: []string{"body", "title"}, Msg: "field required", Type: "value_error.missing"})
		return catalog.Course{}, false
	}
	course := catalog.Course{UserID: s.auth.userID(claims.Username), Title: title}
	if d := c.PostForm("description"); d != "" {
		course.Description = &d
	}
	if u := c.PostForm("thumbnail_url"); u != "" {
		course.ThumbnailURL = &u
	}
	return course, true
}

func (s *Server) getCourse(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	course, err := s.store.Course(id)
	if notFound(c, "Course", err) {
		return
	}
	c.JSON(http.StatusOK, course)
}

func (s *Server) deleteCourse(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if notFound(c, "Course", s.store.DeleteCourse(id)) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Course deleted successfully"})
}

func (s *Server) setPublished(published bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := queryID(c, "course_id")
		if !ok {
			return
		}
		course, err := s.store.SetPublished(id, published)
		if notFound(c, "Course", err) {
			return
		}
		c.JSON(http.StatusOK, course)
	}
}

// generateTOC replaces a course's modules with a fixed outline.
func (s *Server) generateTOC(c *gin.Context) {
	id, ok := queryID(c, "course_id")
	if !ok {
		return
	}
	if notFound(c, "Course", s.store.ClearModules(id)) {
		return
	}
	outline := []string{"Foundations", "Core Concepts", "Practice"}
	units := 0
	for i, title := range outline {
		m, err := s.store.AddModule(id, title, i+1)
		if notFound(c, "Course", err) {
			return
		}
		for j := 1; j <= 2; j++ {
			if _, err := s.store.AddUnit(m.ID, title+" "+strconv.Itoa(j), j); notFound(c, "Module", err) {
				return
			}
			units++
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Table of contents generated", "modules": len(outline), "units": units})
}

func (s *Server) clearTOC(c *gin.Context) {
	id, ok := queryID(c, "course_id")
	if !ok {
		return
	}
	if notFound(c, "Course", s.store.ClearModules(id)) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Table of contents cleared"})
}

func (s *Server) clearModuleContents(c *gin.Context) {
	id, ok := queryID(c, "module_id")
	if !ok {
		return
	}
	if notFound(c, "Module", s.store.ClearModuleContents(id)) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Module contents cleared"})
}

func (s *Server) listModules(c *gin.Context) {
	courseID, ok := queryID(c, "course_id")
	if !ok {
		return
	}
	var out []catalog.Module
	for _, m := range s.store.Modules(courseID) {
		if matches(m.Title, c.Query("search")) {
			out = append(out, m)
		}
	}
	c.JSON(http.StatusOK, paginate(out, queryInt(c, "page", 1), queryInt(c, "per_page", 10)))
}

func (s *Server) listUnits(c *gin.Context) {
	moduleID, ok := queryID(c, "module_id")
	if !ok {
		return
	}
	var out []catalog.Unit
	for _, u := range s.store.Units(moduleID) {
		if matches(u.Title, c.Query("search")) {
			out = append(out, u)
		}
	}
	c.JSON(http.StatusOK, paginate(out, queryInt(c, "page", 1), queryInt(c, "per_page", 10)))
}

func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		unprocessable(c, fieldProblem{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error.jsondecode"})
		return false
	}
	return true
}

func requireTitle(c *gin.Context, title *string) bool {
	if title == nil || strings.TrimSpace(*title) == "" {
		unprocessable(c, fieldProblem{Loc: []string{"body", "title"}, Msg: "field required", Type: "value_error.missing"})
		return false
	}
	return true
}

func (s *Server) createModule(c *gin.Context) {
	courseID, ok := queryID(c, "course_id")
	if !ok {
		return
	}
	var in catalog.ModuleInput
	if !bindJSON(c, &in) || !requireTitle(c, in.Title) {
		return
	}
	m, err := s.store.CreateModule(courseID, in)
	if notFound(c, "Course", err) {
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) updateModule(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in catalog.ModuleInput
	if !bindJSON(c, &in) {
		return
	}
	m, err := s.store.UpdateModule(id, in)
	if notFound(c, "Module", err) {
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) deleteModule(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if notFound(c, "Module", s.store.DeleteModule(id)) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Module deleted successfully"})
}

func (s *Server) createUnit(c *gin.Context) {
	var in catalog.UnitInput
	if !bindJSON(c, &in) {
		return
	}
	if in.ModuleID <= 0 {
		unprocessable(c, fieldProblem{Loc: []string{"body", "module_id"}, Msg: "field required", Type: "value_error.missing"})
		return
	}
	if !requireTitle(c, in.Title) {
		return
	}
	u, err := s.store.CreateUnit(in)
	if notFound(c, "Module", err) {
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) updateUnit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in catalog.UnitInput
	if !bindJSON(c, &in) {
		return
	}
	u, err := s.store.UpdateUnit(id, in)
	if notFound(c, "Unit", err) {
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) deleteUnit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if notFound(c, "Unit", s.store.DeleteUnit(id)) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unit deleted successfully"})
}

func (s *Server) listUnitContents(unitID func(*gin.Context) (int64, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := unitID(c)
		if !ok {
			return
		}
		if _, err := s.store.Unit(id); notFound(c, "Unit", err) {
			return
		}
		items := s.store.Contents(id)
		if strings.EqualFold(c.Query("sort_order"), "desc") {
			for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
				items[i], items[j] = items[j], items[i]
			}
		}
		c.JSON(http.StatusOK, paginate(items, queryInt(c, "page", 1), queryInt(c, "per_page", 10)))
	}
}

func (s *Server) getContent(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	content, err := s.store.Content(id)
	if notFound(c, "Content", err) {
		return
	}
	c.JSON(http.StatusOK, content)
}

func (s *Server) createContent(c *gin.Context) {
	var in catalog.ContentInput
	if !bindJSON(c, &in) {
		return
	}
	if in.UnitID <= 0 {
		unprocessable(c, fieldProblem{Loc: []string{"body", "unit_id"}, Msg: "field required", Type: "value_error.missing"})
		return
	}
	content := catalog.Content{UnitID: in.UnitID, ContentType: "text"}
	applyInput(&content, in)
	saved, err := s.store.PutContent(content)
	if notFound(c, "Unit", err) {
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) updateContent(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in catalog.ContentInput
	if !bindJSON(c, &in) {
		return
	}
	content, err := s.store.Content(id)
	if notFound(c, "Content", err) {
		return
	}
	applyInput(&content, in)
	saved, err := s.store.PutContent(content)
	if notFound(c, "Content", err) {
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) deleteContent(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if notFound(c, "Content", s.store.DeleteContent(id)) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Content deleted successfully"})
}

func applyInput(c *catalog.Content, in catalog.ContentInput) {
	if in.Title != nil {
		c.Title = *in.Title
	}
	if in.ContentType != nil {
		c.ContentType = *in.ContentType
	}
	if in.Content != nil {
		c.Content = *in.Content
	}
	if in.Order != nil {
		c.Order = *in.Order
	}
	if in.IsAIGenerated != nil {
		c.IsAIGenerated = *in.IsAIGenerated
	}
	if in.AIPrompt != nil {
		c.AIPrompt = in.AIPrompt
	}
	if in.PageReference != nil {
		c.PageReference = in.PageReference
	}
}
