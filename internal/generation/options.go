package generation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/yungbote/coursegen/internal/platform/apierr"
)

type ContentType string

const (
	ContentText     ContentType = "text"
	ContentCode     ContentType = "code"
	ContentQuiz     ContentType = "quiz"
	ContentMarkdown ContentType = "markdown"
	ContentHTML     ContentType = "html"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

type Tone string

const (
	ToneLearning     Tone = "learning"
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneAcademic     Tone = "academic"
	ToneFriendly     Tone = "friendly"
)

type Audience string

const (
	AudienceStudent      Audience = "student"
	AudienceProfessional Audience = "professional"
	AudienceGeneral      Audience = "general"
)

// Options describes how content should be produced. Empty enum fields are
// omitted from the request so the backend applies its own default.
type Options struct {
	ContentType      ContentType `json:"content_type,omitempty"`
	CustomPrompt     string      `json:"custom_prompt,omitempty"`
	DifficultyLevel  Difficulty  `json:"difficulty_level,omitempty"`
	Tone             Tone        `json:"tone,omitempty"`
	TargetAudience   Audience    `json:"target_audience,omitempty"`
	IncludeExamples  bool        `json:"include_examples"`
	IncludeExercises bool        `json:"include_exercises"`
}

// WithDefaults returns a copy with content_type set to text when unset.
func (o Options) WithDefaults() Options {
	if o.ContentType == "" {
		o.ContentType = ContentText
	}
	return o
}

// BatchDefaults are the options offered for module and course batches.
func BatchDefaults() Options {
	return Options{
		ContentType:      ContentText,
		DifficultyLevel:  DifficultyIntermediate,
		Tone:             ToneProfessional,
		TargetAudience:   AudienceStudent,
		IncludeExamples:  true,
		IncludeExercises: true,
	}
}

var (
	ContentTypes = []ContentType{ContentText, ContentCode, ContentQuiz, ContentMarkdown, ContentHTML}
	Difficulties = []Difficulty{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}
	Tones        = []Tone{ToneLearning, ToneProfessional, ToneCasual, ToneAcademic, ToneFriendly}
	Audiences    = []Audience{AudienceStudent, AudienceProfessional, AudienceGeneral}
)

// FieldError names an enum field holding a value outside its allowed set.
type FieldError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("invalid %s %q (allowed: %s)", e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

// Invalid lists every enum field that is set to an unknown value. Empty
// fields are valid; the backend fills in its defaults.
func (o Options) Invalid() []FieldError {
	var out []FieldError
	out = appendInvalid(out, "content_type", o.ContentType, ContentTypes)
	out = appendInvalid(out, "difficulty_level", o.DifficultyLevel, Difficulties)
	out = appendInvalid(out, "tone", o.Tone, Tones)
	out = appendInvalid(out, "target_audience", o.TargetAudience, Audiences)
	return out
}

func (o Options) Validate() error {
	if bad := o.Invalid(); len(bad) > 0 {
		return apierr.Local(bad[0].Error())
	}
	return nil
}

func appendInvalid[T ~string](out []FieldError, field string, v T, allowed []T) []FieldError {
	if v == "" || slices.Contains(allowed, v) {
		return out
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return append(out, FieldError{Field: field, Value: string(v), Allowed: names})
}
