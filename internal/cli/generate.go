package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/coursegen/internal/app"
	"github.com/yungbote/coursegen/internal/generation"
	"github.com/yungbote/coursegen/internal/notify"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/progress"
)

func addOptionFlags(cmd *cobra.Command, defaults generation.Options) {
	cmd.Flags().String("type", string(defaults.ContentType), "content type: text, code, quiz, markdown, html")
	cmd.Flags().String("difficulty", string(defaults.DifficultyLevel), "beginner, intermediate or advanced")
	cmd.Flags().String("tone", string(defaults.Tone), "learning, professional, casual, academic or friendly")
	cmd.Flags().String("audience", string(defaults.TargetAudience), "student, professional or general")
	cmd.Flags().String("prompt", "", "custom prompt")
	cmd.Flags().Bool("examples", defaults.IncludeExamples, "include examples")
	cmd.Flags().Bool("exercises", defaults.IncludeExercises, "include exercises")
}

func optionsFrom(cmd *cobra.Command) generation.Options {
	contentType, _ := cmd.Flags().GetString("type")
	difficulty, _ := cmd.Flags().GetString("difficulty")
	tone, _ := cmd.Flags().GetString("tone")
	audience, _ := cmd.Flags().GetString("audience")
	prompt, _ := cmd.Flags().GetString("prompt")
	examples, _ := cmd.Flags().GetBool("examples")
	exercises, _ := cmd.Flags().GetBool("exercises")
	return generation.Options{
		ContentType:      generation.ContentType(contentType),
		DifficultyLevel:  generation.Difficulty(difficulty),
		Tone:             generation.Tone(tone),
		TargetAudience:   generation.Audience(audience),
		CustomPrompt:     prompt,
		IncludeExamples:  examples,
		IncludeExercises: exercises,
	}
}

func newGenerateCommand(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <unit-id>",
		Short: "generate content for a unit",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			if _, err := a.Generator.Generate(cmd.Context(), ids[0], optionsFrom(cmd)); err != nil {
				return writeError(cmd, err)
			}
			_, page := a.UnitView.Current()
			return renderContents(cmd, page)
		}),
	}
	addOptionFlags(cmd, generation.Options{})
	return cmd
}

func newRegenerateCommand(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regenerate <unit-id> <content-id>",
		Short: "regenerate one content item",
		Args:  requireArgs(2),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			if _, err := a.Generator.Regenerate(cmd.Context(), ids[0], ids[1], optionsFrom(cmd)); err != nil {
				return writeError(cmd, err)
			}
			_, page := a.UnitView.Current()
			return renderContents(cmd, page)
		}),
	}
	addOptionFlags(cmd, generation.Options{})
	return cmd
}

func newAssistCommand(a *app.App, kind, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind + " <unit-id>",
		Short: short,
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			count, _ := cmd.Flags().GetInt("count")
			difficulty, _ := cmd.Flags().GetString("difficulty")
			length, _ := cmd.Flags().GetString("length")
			format, _ := cmd.Flags().GetString("format")
			answers, _ := cmd.Flags().GetBool("answers")
			d := generation.Difficulty(difficulty)

			var (
				text string
				err  error
			)
			switch kind {
			case generation.TypeSummary:
				text, err = a.Generator.GenerateSummary(cmd.Context(), ids[0], generation.SummaryParams{Length: length, DifficultyLevel: d})
			case generation.TypeExample:
				text, err = a.Generator.GenerateExample(cmd.Context(), ids[0], generation.ExampleParams{Count: count, DifficultyLevel: d, IncludeSolutions: answers, Format: format})
			default:
				text, err = a.Generator.GenerateExercise(cmd.Context(), ids[0], generation.ExerciseParams{Count: count, DifficultyLevel: d, IncludeAnswerKey: answers, Format: format})
			}
			if err != nil {
				return writeError(cmd, err)
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, map[string]string{kind: text})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		}),
	}
	cmd.Flags().Int("count", 0, "number of items (example, exercise)")
	cmd.Flags().String("difficulty", "", "beginner, intermediate or advanced")
	cmd.Flags().String("length", "", "summary length")
	cmd.Flags().String("format", "", "output format")
	cmd.Flags().Bool("answers", true, "include solutions or answer key")
	return cmd
}

func newBatchCommand(a *app.App) *cobra.Command {
	batch := &cobra.Command{
		Use:   "batch",
		Short: "run a batch job and follow its progress",
	}
	batch.AddCommand(
		newBatchScopeCommand(a, generation.ScopeModule, "module <module-id>", "generate for every unit of a module"),
		newBatchScopeCommand(a, generation.ScopeCourse, "course <course-id>", "generate content for every module of a course"),
	)
	return batch
}

func newBatchScopeCommand(a *app.App, scope generation.Scope, use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			title, _ := cmd.Flags().GetString("title")
			types, _ := cmd.Flags().GetStringSlice("types")
			strategy, _ := cmd.Flags().GetString("strategy")
			var selected []string
			for _, t := range types {
				if t = strings.TrimSpace(t); t != "" {
					selected = append(selected, t)
				}
			}
			req := generation.BatchRequest{
				Scope:       scope,
				TargetID:    ids[0],
				TargetTitle: title,
				Types:       selected,
				Options:     optionsFrom(cmd),
				Strategy:    strategy,
			}
			if err := a.Batch.Start(cmd.Context(), req); err != nil {
				return writeError(cmd, err)
			}
			state, err := a.Batch.Wait(cmd.Context())
			if err != nil {
				// Interrupted: stop following the job. It keeps running server side.
				_ = a.Batch.Close()
				return writeError(cmd, err)
			}
			switch {
			case state.Status == progress.StatusFailed:
				return writeError(cmd, &apierr.Error{Kind: apierr.KindGeneration, Message: state.Message})
			case state.BatchID != "" && state.Status != progress.StatusCompleted:
				return writeError(cmd, &apierr.Error{Kind: apierr.KindNetwork, Message: "progress stream ended before the batch finished"})
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, state)
			}
			return nil
		}),
	}
	cmd.Flags().String("title", "", "title used in notifications")
	cmd.Flags().StringSlice("types", []string{generation.TypeContent}, "content, or any of summary, example, exercise")
	cmd.Flags().String("strategy", "", "force a strategy: ai-batch, module-contents, course-contents")
	addOptionFlags(cmd, generation.BatchDefaults())
	return cmd
}

func newNotificationsCommand(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "notifications",
		Short: "print notifications published to Redis",
		Args:  requireArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.Redis == nil {
				return writeError(cmd, apierr.Local("REDIS_ADDR is not set or Redis is unreachable"))
			}
			out := cmd.OutOrStdout()
			err := a.Redis.Subscribe(cmd.Context(), func(n notify.Notification) {
				fmt.Fprintf(out, "%s [%s] %s: %s\n", n.At.Format(time.TimeOnly), n.Level, n.Source, n.Message)
			})
			if err != nil {
				return writeError(cmd, err)
			}
			<-cmd.Context().Done()
			return nil
		},
	}
}
