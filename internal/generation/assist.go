package generation

import (
	"context"
	"net/http"
	"strings"

	"github.com/yungbote/coursegen/internal/apiclient"
	"github.com/yungbote/coursegen/internal/notify"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

// Single-purpose generation variants. Results are returned to the caller and
// not stored as unit content.

type SummaryParams struct {
	Length          string     `json:"length,omitempty"`
	Style           string     `json:"style,omitempty"`
	DifficultyLevel Difficulty `json:"difficulty_level,omitempty"`
	TargetAudience  Audience   `json:"target_audience,omitempty"`
}

type ExampleParams struct {
	Count            int        `json:"count,omitempty"`
	DifficultyLevel  Difficulty `json:"difficulty_level,omitempty"`
	IncludeSolutions bool       `json:"include_solutions"`
	Format           string     `json:"format,omitempty"`
}

type ExerciseParams struct {
	Count            int        `json:"count,omitempty"`
	DifficultyLevel  Difficulty `json:"difficulty_level,omitempty"`
	IncludeAnswerKey bool       `json:"include_answer_key"`
	Format           string     `json:"format,omitempty"`
}

func (g *Generator) GenerateSummary(ctx context.Context, unitID int64, p SummaryParams) (string, error) {
	body := struct {
		UnitID int64 `json:"unit_id"`
		SummaryParams
	}{unitID, p}
	return g.assist(ctx, TypeSummary, "Summary generated successfully", "Error generating summary: ", unitID, body)
}

func (g *Generator) GenerateExample(ctx context.Context, unitID int64, p ExampleParams) (string, error) {
	body := struct {
		UnitID int64 `json:"unit_id"`
		ExampleParams
	}{unitID, p}
	return g.assist(ctx, TypeExample, "Examples generated successfully", "Error generating examples: ", unitID, body)
}

func (g *Generator) GenerateExercise(ctx context.Context, unitID int64, p ExerciseParams) (string, error) {
	body := struct {
		UnitID int64 `json:"unit_id"`
		ExerciseParams
	}{unitID, p}
	return g.assist(ctx, TypeExercise, "Exercises generated successfully", "Error generating exercises: ", unitID, body)
}

func (g *Generator) assist(ctx context.Context, kind, okMsg, errPrefix string, unitID int64, body any) (string, error) {
	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	if unitID <= 0 {
		err := apierr.Local("select a unit")
		g.notify(ctx, notify.LevelError, errPrefix+err.Error())
		return "", err
	}

	var out struct {
		Data struct {
			Content struct {
				Content string `json:"content"`
			} `json:"content"`
		} `json:"data"`
	}
	req := apiclient.Request{Method: http.MethodPost, Endpoint: "ai/generate/" + kind, Body: body}
	if err := g.api.Do(ctx, req, &out); err != nil {
		g.notify(ctx, notify.LevelError, errPrefix+err.Error())
		return "", err
	}
	text := out.Data.Content.Content
	if strings.TrimSpace(text) == "" {
		err := &apierr.Error{Kind: apierr.KindAPI, Endpoint: req.Endpoint, Message: "empty generation result"}
		g.notify(ctx, notify.LevelError, errPrefix+err.Error())
		return "", err
	}
	g.notify(ctx, notify.LevelSuccess, okMsg)
	return text, nil
}
