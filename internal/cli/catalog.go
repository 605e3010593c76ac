package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yungbote/coursegen/internal/apiclient"
	"github.com/yungbote/coursegen/internal/app"
	"github.com/yungbote/coursegen/internal/catalog"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().Int("page", 1, "page number")
	cmd.Flags().Int("per-page", 10, "items per page")
	cmd.Flags().String("search", "", "title filter")
}

func pageQuery(cmd *cobra.Command) catalog.Query {
	page, _ := cmd.Flags().GetInt("page")
	perPage, _ := cmd.Flags().GetInt("per-page")
	search, _ := cmd.Flags().GetString("search")
	return catalog.Query{Page: page, PerPage: perPage, Search: search}
}

func renderCourses(cmd *cobra.Command, page *catalog.Page[catalog.Course]) error {
	return render(cmd, page, "ID\tTITLE\tFILE\tPUBLISHED", func(w io.Writer) {
		for _, c := range page.Items {
			fmt.Fprintf(w, "%d\t%s\t%d\t%v\n", c.ID, c.Title, c.FileID, c.IsPublished)
		}
	})
}

func renderCourse(cmd *cobra.Command, c *catalog.Course) error {
	return renderCourses(cmd, &catalog.Page[catalog.Course]{Items: []catalog.Course{*c}, Total: 1})
}

func newCourseCommand(a *app.App) *cobra.Command {
	course := &cobra.Command{
		Use:   "course",
		Short: "manage courses",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list your courses",
		Args:  requireArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := pageQuery(cmd)
			var (
				page *catalog.Page[catalog.Course]
				err  error
			)
			if published, _ := cmd.Flags().GetBool("published"); published {
				page, err = a.Courses.ListPublished(cmd.Context(), q.Page, q.PerPage)
			} else {
				page, err = a.Courses.List(cmd.Context(), q.Page, q.PerPage)
			}
			if err != nil {
				return writeError(cmd, err)
			}
			return renderCourses(cmd, page)
		},
	}
	addPageFlags(listCmd)
	listCmd.Flags().Bool("published", false, "list published courses instead of your own")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "search published courses",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := pageQuery(cmd)
			page, err := a.Courses.SearchPublished(cmd.Context(), args[0], q.Page, q.PerPage)
			if err != nil {
				return writeError(cmd, err)
			}
			return renderCourses(cmd, page)
		},
	}
	searchCmd.Flags().Int("page", 1, "page number")
	searchCmd.Flags().Int("per-page", 10, "items per page")

	getCmd := &cobra.Command{
		Use:   "get <course-id>",
		Short: "show one course",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			c, err := a.Courses.Get(cmd.Context(), ids[0])
			if err != nil {
				return writeError(cmd, err)
			}
			return renderCourse(cmd, c)
		}),
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "create a course from a source file",
		Args:  requireArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			title, _ := cmd.Flags().GetString("title")
			description, _ := cmd.Flags().GetString("description")
			thumbnail, _ := cmd.Flags().GetString("thumbnail")
			path, _ := cmd.Flags().GetString("file")
			fileID, _ := cmd.Flags().GetInt64("file-id")
			if (path == "") == (fileID == 0) {
				return &usageError{err: fmt.Errorf("give exactly one of --file or --file-id")}
			}
			in := catalog.CourseInput{Title: title, Description: description, ThumbnailURL: thumbnail, FileID: fileID}
			var (
				c   *catalog.Course
				err error
			)
			if path != "" {
				content, rerr := os.ReadFile(path)
				if rerr != nil {
					return writeError(cmd, apierr.Local(rerr.Error()))
				}
				in.File = &apiclient.FormFile{Filename: filepath.Base(path), Content: content}
				c, err = a.Courses.Create(cmd.Context(), in)
			} else {
				c, err = a.Courses.CreateByFileID(cmd.Context(), in)
			}
			if err != nil {
				return writeError(cmd, err)
			}
			return renderCourse(cmd, c)
		},
	}
	createCmd.Flags().String("title", "", "course title")
	createCmd.Flags().String("description", "", "course description")
	createCmd.Flags().String("thumbnail", "", "thumbnail URL; https:// is added when no scheme is given")
	createCmd.Flags().String("file", "", "source document to upload")
	createCmd.Flags().Int64("file-id", 0, "id of a file the backend already holds")

	deleteCmd := &cobra.Command{
		Use:   "delete <course-id>",
		Short: "delete a course",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			if err := a.Courses.Delete(cmd.Context(), ids[0]); err != nil {
				return writeError(cmd, err)
			}
			return message(cmd, "course %d deleted", ids[0])
		}),
	}

	publishCmd := &cobra.Command{
		Use:   "publish <course-id>",
		Short: "publish a course",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			c, err := a.Courses.Publish(cmd.Context(), ids[0])
			if err != nil {
				return writeError(cmd, err)
			}
			return renderCourse(cmd, c)
		}),
	}

	unpublishCmd := &cobra.Command{
		Use:   "unpublish <course-id>",
		Short: "unpublish a course",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			c, err := a.Courses.Unpublish(cmd.Context(), ids[0])
			if err != nil {
				return writeError(cmd, err)
			}
			return renderCourse(cmd, c)
		}),
	}

	tocCmd := &cobra.Command{
		Use:   "toc <course-id>",
		Short: "derive modules and units from the course file",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			out, err := a.Courses.GenerateTOC(cmd.Context(), ids[0])
			if err != nil {
				return writeError(cmd, err)
			}
			return writeJSON(cmd, out)
		}),
	}

	clearTOCCmd := &cobra.Command{
		Use:   "clear-toc <course-id>",
		Short: "remove every module of a course",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			if err := a.Courses.ClearTOC(cmd.Context(), ids[0]); err != nil {
				return writeError(cmd, err)
			}
			return message(cmd, "table of contents cleared")
		}),
	}

	course.AddCommand(listCmd, searchCmd, getCmd, createCmd, deleteCmd, publishCmd, unpublishCmd, tocCmd, clearTOCCmd)
	return course
}

func addStructureFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "title")
	cmd.Flags().String("description", "", "description")
	cmd.Flags().Int("order", 0, "position among siblings")
}

func newModuleCommand(a *app.App) *cobra.Command {
	module := &cobra.Command{
		Use:   "module",
		Short: "manage course modules",
	}
	renderModule := func(cmd *cobra.Command, m *catalog.Module) error {
		return render(cmd, m, "ID\tCOURSE\tORDER\tTITLE", func(w io.Writer) {
			fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", m.ID, m.CourseID, m.Order, m.Title)
		})
	}
	moduleInput := func(cmd *cobra.Command) catalog.ModuleInput {
		return catalog.ModuleInput{
			Title:       changedString(cmd, "title"),
			Description: changedString(cmd, "description"),
			Order:       changedInt(cmd, "order"),
		}
	}

	listCmd := &cobra.Command{
		Use:   "list <course-id>",
		Short: "list modules of a course",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			page, err := a.Courses.ListModules(cmd.Context(), ids[0], pageQuery(cmd))
			if err != nil {
				return writeError(cmd, err)
			}
			return render(cmd, page, "ID\tORDER\tTITLE", func(w io.Writer) {
				for _, m := range page.Items {
					fmt.Fprintf(w, "%d\t%d\t%s\n", m.ID, m.Order, m.Title)
				}
			})
		}),
	}
	addPageFlags(listCmd)

	createCmd := &cobra.Command{
		Use:   "create <course-id>",
		Short: "add a module to a course",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			m, err := a.Structure.CreateModule(cmd.Context(), ids[0], moduleInput(cmd))
			if err != nil {
				return writeError(cmd, err)
			}
			return renderModule(cmd, m)
		}),
	}
	addStructureFlags(createCmd)

	updateCmd := &cobra.Command{
		Use:   "update <module-id>",
		Short: "change a module's title, description or order",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			m, err := a.Structure.UpdateModule(cmd.Context(), ids[0], moduleInput(cmd))
			if err != nil {
				return writeError(cmd, err)
			}
			return renderModule(cmd, m)
		}),
	}
	addStructureFlags(updateCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete <module-id>",
		Short: "delete a module with its units",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			if err := a.Structure.DeleteModule(cmd.Context(), ids[0]); err != nil {
				return writeError(cmd, err)
			}
			return message(cmd, "module %d deleted", ids[0])
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear-contents <module-id>",
		Short: "delete the contents of every unit in a module",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			if err := a.Courses.ClearModuleContents(cmd.Context(), ids[0]); err != nil {
				return writeError(cmd, err)
			}
			return message(cmd, "module %d contents cleared", ids[0])
		}),
	}

	module.AddCommand(listCmd, createCmd, updateCmd, deleteCmd, clearCmd)
	return module
}

func newUnitCommand(a *app.App) *cobra.Command {
	unit := &cobra.Command{
		Use:   "unit",
		Short: "manage module units",
	}
	renderUnit := func(cmd *cobra.Command, u *catalog.Unit) error {
		return render(cmd, u, "ID\tMODULE\tORDER\tTITLE", func(w io.Writer) {
			fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", u.ID, u.ModuleID, u.Order, u.Title)
		})
	}
	unitInput := func(cmd *cobra.Command, moduleID int64) catalog.UnitInput {
		return catalog.UnitInput{
			ModuleID:    moduleID,
			Title:       changedString(cmd, "title"),
			Description: changedString(cmd, "description"),
			Order:       changedInt(cmd, "order"),
		}
	}

	listCmd := &cobra.Command{
		Use:   "list <course-id> <module-id>",
		Short: "list units of a module",
		Args:  requireArgs(2),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			page, err := a.Courses.ListUnits(cmd.Context(), ids[0], ids[1], pageQuery(cmd))
			if err != nil {
				return writeError(cmd, err)
			}
			return render(cmd, page, "ID\tORDER\tTITLE", func(w io.Writer) {
				for _, u := range page.Items {
					fmt.Fprintf(w, "%d\t%d\t%s\n", u.ID, u.Order, u.Title)
				}
			})
		}),
	}
	addPageFlags(listCmd)

	createCmd := &cobra.Command{
		Use:   "create <module-id>",
		Short: "add a unit to a module",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			u, err := a.Structure.CreateUnit(cmd.Context(), unitInput(cmd, ids[0]))
			if err != nil {
				return writeError(cmd, err)
			}
			return renderUnit(cmd, u)
		}),
	}
	addStructureFlags(createCmd)

	updateCmd := &cobra.Command{
		Use:   "update <unit-id>",
		Short: "change a unit's title, description or order",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			u, err := a.Structure.UpdateUnit(cmd.Context(), ids[0], unitInput(cmd, 0))
			if err != nil {
				return writeError(cmd, err)
			}
			return renderUnit(cmd, u)
		}),
	}
	addStructureFlags(updateCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete <unit-id>",
		Short: "delete a unit with its contents",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			if err := a.Structure.DeleteUnit(cmd.Context(), ids[0]); err != nil {
				return writeError(cmd, err)
			}
			return message(cmd, "unit %d deleted", ids[0])
		}),
	}

	unit.AddCommand(listCmd, createCmd, updateCmd, deleteCmd)
	return unit
}

func renderContents(cmd *cobra.Command, page *catalog.Page[catalog.Content]) error {
	if page == nil {
		return nil
	}
	err := render(cmd, page, "ID\tORDER\tTYPE\tAI\tTITLE", func(w io.Writer) {
		for _, c := range page.Items {
			fmt.Fprintf(w, "%d\t%d\t%s\t%v\t%s\n", c.ID, c.Order, c.ContentType, c.IsAIGenerated, c.Title)
		}
	})
	if err != nil || jsonOutput(cmd) {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d total)\n", page.Page, page.TotalPages, page.Total)
	return err
}

func newContentCommand(a *app.App) *cobra.Command {
	content := &cobra.Command{
		Use:   "content",
		Short: "manage unit contents",
	}
	contentInput := func(cmd *cobra.Command, unitID int64) catalog.ContentInput {
		return catalog.ContentInput{
			UnitID:      unitID,
			Title:       changedString(cmd, "title"),
			ContentType: changedString(cmd, "type"),
			Content:     changedString(cmd, "body"),
			Order:       changedInt(cmd, "order"),
		}
	}
	addContentFlags := func(cmd *cobra.Command) {
		cmd.Flags().String("title", "", "title")
		cmd.Flags().String("type", "", "content type")
		cmd.Flags().String("body", "", "content body")
		cmd.Flags().Int("order", 0, "position in the unit")
	}
	renderOne := func(cmd *cobra.Command, c *catalog.Content) error {
		return renderContents(cmd, &catalog.Page[catalog.Content]{Items: []catalog.Content{*c}, Total: 1, Page: 1, TotalPages: 1})
	}

	listCmd := &cobra.Command{
		Use:   "list <unit-id>",
		Short: "list contents of a unit",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			page, err := a.Contents.ListUnit(cmd.Context(), ids[0], pageQuery(cmd))
			if err != nil {
				return writeError(cmd, err)
			}
			return renderContents(cmd, page)
		}),
	}
	addPageFlags(listCmd)

	getCmd := &cobra.Command{
		Use:   "get <content-id>",
		Short: "print one content item",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			c, err := a.Contents.Get(cmd.Context(), ids[0])
			if err != nil {
				return writeError(cmd, err)
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, c)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), c.Content)
			return err
		}),
	}

	createCmd := &cobra.Command{
		Use:   "create <unit-id>",
		Short: "add hand-written content to a unit",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			c, err := a.Contents.Create(cmd.Context(), contentInput(cmd, ids[0]))
			if err != nil {
				return writeError(cmd, err)
			}
			return renderOne(cmd, c)
		}),
	}
	addContentFlags(createCmd)

	updateCmd := &cobra.Command{
		Use:   "update <content-id>",
		Short: "edit a content item",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			c, err := a.Contents.Update(cmd.Context(), ids[0], contentInput(cmd, 0))
			if err != nil {
				return writeError(cmd, err)
			}
			return renderOne(cmd, c)
		}),
	}
	addContentFlags(updateCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete <content-id>",
		Short: "delete a content item",
		Args:  requireArgs(1),
		RunE: withIDs(func(cmd *cobra.Command, ids []int64) error {
			if err := a.Contents.Delete(cmd.Context(), ids[0]); err != nil {
				return writeError(cmd, err)
			}
			return message(cmd, "content %d deleted", ids[0])
		}),
	}

	content.AddCommand(listCmd, getCmd, createCmd, updateCmd, deleteCmd)
	return content
}

// withIDs parses the positional ids before running fn.
func withIDs(fn func(cmd *cobra.Command, ids []int64) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return fn(cmd, ids)
	}
}
