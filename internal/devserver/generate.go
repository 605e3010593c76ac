package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursegen/internal/catalog"
	"github.com/yungbote/coursegen/internal/generation"
)

// A custom prompt containing this word makes batch content generation fail
// the way a recitation-blocked model response does.
const recitationTrigger = "recite"

var assistKinds = []string{generation.TypeSummary, generation.TypeExample, generation.TypeExercise}

// bindOptions decodes an optional options body and answers 422 for unknown
// enum values.
func bindOptions(c *gin.Context) (generation.Options, bool) {
	var opts generation.Options
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := json.NewDecoder(c.Request.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
			unprocessable(c, fieldProblem{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error.jsondecode"})
			return opts, false
		}
	}
	if bad := opts.Invalid(); len(bad) > 0 {
		problems := make([]fieldProblem, 0, len(bad))
		for _, b := range bad {
			problems = append(problems, fieldProblem{
				Loc:  []string{"body", b.Field},
				Msg:  "invalid enum value",
				Type: "type_error.enum",
				Ctx:  map[string]any{"enum_values": b.Allowed},
			})
		}
		unprocessable(c, problems...)
		return opts, false
	}
	return opts.WithDefaults(), true
}

func renderContent(unit catalog.Unit, o generation.Options) string {
	difficulty := string(o.DifficultyLevel)
	if difficulty == "" {
		difficulty = string(generation.DifficultyIntermediate)
	}
	audience := string(o.TargetAudience)
	if audience == "" {
		audience = string(generation.AudienceStudent)
	}
	tone := string(o.Tone)
	if tone == "" {
		tone = string(generation.ToneLearning)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", unit.Title)
	fmt.Fprintf(&b, "An %s overview of %s for the %s reader, written in a %s tone.\n",
		difficulty, unit.Title, audience, tone)
	if p := strings.TrimSpace(o.CustomPrompt); p != "" {
		fmt.Fprintf(&b, "\n> %s\n", p)
	}
	if o.IncludeExamples {
		fmt.Fprintf(&b, "\n## Example\n\nA worked example applying %s.\n", unit.Title)
	}
	if o.IncludeExercises {
		fmt.Fprintf(&b, "\n## Exercise\n\nPractice %s on your own.\n", unit.Title)
	}
	return b.String()
}

func renderAssist(unit catalog.Unit, kind string) string {
	switch kind {
	case generation.TypeSummary:
		return fmt.Sprintf("Summary of %s: the key ideas in a few sentences.", unit.Title)
	case generation.TypeExample:
		return fmt.Sprintf("Example for %s: a short scenario with its solution.", unit.Title)
	default:
		return fmt.Sprintf("Exercise for %s: try it, then check the answer key.", unit.Title)
	}
}

func generatedContent(unit catalog.Unit, o generation.Options) catalog.Content {
	prompt := o.CustomPrompt
	return catalog.Content{
		UnitID:        unit.ID,
		Title:         unit.Title,
		ContentType:   string(o.ContentType),
		Content:       renderContent(unit, o),
		IsAIGenerated: true,
		AIPrompt:      &prompt,
		ContentMetadata: &catalog.ContentMetadata{
			ContentType:      string(o.ContentType),
			CustomPrompt:     o.CustomPrompt,
			IncludeExamples:  o.IncludeExamples,
			IncludeExercises: o.IncludeExercises,
			DifficultyLevel:  string(o.DifficultyLevel),
			Tone:             string(o.Tone),
			TargetAudience:   string(o.TargetAudience),
		},
	}
}

func (s *Server) generateContent(c *gin.Context) {
	unitID, ok := queryID(c, "unit_id")
	if !ok {
		return
	}
	opts, ok := bindOptions(c)
	if !ok {
		return
	}
	unit, err := s.store.Unit(unitID)
	if notFound(c, "Unit", err) {
		return
	}
	saved, err := s.store.PutContent(generatedContent(unit, opts))
	if notFound(c, "Unit", err) {
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) regenerateContent(c *gin.Context) {
	contentID, ok := paramID(c, "id")
	if !ok {
		return
	}
	opts, ok := bindOptions(c)
	if !ok {
		return
	}
	prev, err := s.store.Content(contentID)
	if notFound(c, "Content", err) {
		return
	}
	unit, err := s.store.Unit(prev.UnitID)
	if notFound(c, "Unit", err) {
		return
	}
	next := generatedContent(unit, opts)
	next.ID = prev.ID
	next.Order = prev.Order
	saved, err := s.store.PutContent(next)
	if notFound(c, "Content", err) {
		return
	}
	c.JSON(http.StatusOK, saved)
}

// generateUnits fills every unit in units with generated content.
func (s *Server) generateUnits(c *gin.Context, units []catalog.Unit, opts generation.Options) bool {
	if strings.Contains(strings.ToLower(opts.CustomPrompt), recitationTrigger) {
		detail(c, http.StatusInternalServerError, `Error generating content: content { parts { text: "verbatim passage" } role: "model" } finish_reason: RECITATION`)
		return false
	}
	for _, u := range units {
		if _, err := s.store.PutContent(generatedContent(u, opts)); notFound(c, "Unit", err) {
			return false
		}
	}
	return true
}

func (s *Server) batchGenerateModule(c *gin.Context) {
	moduleID, ok := queryID(c, "module_id")
	if !ok {
		return
	}
	opts, ok := bindOptions(c)
	if !ok {
		return
	}
	if _, err := s.store.Module(moduleID); notFound(c, "Module", err) {
		return
	}
	units := s.store.Units(moduleID)
	if !s.generateUnits(c, units, opts) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Content generation started for module %d", moduleID),
		"units":   len(units),
	})
}

func (s *Server) batchGenerateCourse(c *gin.Context) {
	courseID, ok := queryID(c, "course_id")
	if !ok {
		return
	}
	opts, ok := bindOptions(c)
	if !ok {
		return
	}
	if _, err := s.store.Course(courseID); notFound(c, "Course", err) {
		return
	}
	var units []catalog.Unit
	for _, m := range s.store.Modules(courseID) {
		units = append(units, s.store.Units(m.ID)...)
	}
	if !s.generateUnits(c, units, opts) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Content generation started for course %d", courseID),
		"units":   len(units),
	})
}

func (s *Server) assist(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			UnitID int64 `json:"unit_id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.UnitID <= 0 {
			unprocessable(c, fieldProblem{Loc: []string{"body", "unit_id"}, Msg: "field required", Type: "value_error.missing"})
			return
		}
		unit, err := s.store.Unit(body.UnitID)
		if notFound(c, "Unit", err) {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{"content": gin.H{
				"content": renderAssist(unit, kind),
				"type":    kind,
				"unit_id": unit.ID,
			}},
		})
	}
}

func (s *Server) startAIBatch(c *gin.Context) {
	moduleID, ok := queryID(c, "module_id")
	if !ok {
		return
	}
	var types []string
	for _, t := range strings.Split(c.Query("generation_types"), ",") {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(types, t) {
			continue
		}
		if !slices.Contains(assistKinds, t) {
			unprocessable(c, fieldProblem{
				Loc:  []string{"query", "generation_types"},
				Msg:  "invalid enum value",
				Type: "type_error.enum",
				Ctx:  map[string]any{"enum_values": assistKinds},
			})
			return
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		unprocessable(c, fieldProblem{Loc: []string{"query", "generation_types"}, Msg: "field required", Type: "value_error.missing"})
		return
	}
	module, err := s.store.Module(moduleID)
	if notFound(c, "Module", err) {
		return
	}

	units := s.store.Units(moduleID)
	var steps []jobStep
	for _, u := range units {
		for _, kind := range types {
			steps = append(steps, s.assistStep(u, kind))
		}
	}
	id := s.jobs.Start(c.Request.Context(), module.Title, steps)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"batch_id": id, "total_tasks": len(steps)},
	})
}

func (s *Server) assistStep(u catalog.Unit, kind string) jobStep {
	return jobStep{
		label: fmt.Sprintf("Generating %s for %s", kind, u.Title),
		run: func() error {
			_, err := s.store.PutContent(catalog.Content{
				UnitID:        u.ID,
				Title:         strings.ToUpper(kind[:1]) + kind[1:] + ": " + u.Title,
				ContentType:   string(generation.ContentMarkdown),
				Content:       renderAssist(u, kind),
				IsAIGenerated: true,
			})
			return err
		},
	}
}
