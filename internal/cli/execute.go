// Package cli is the coursegen command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yungbote/coursegen/internal/app"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitInvalidUsage = 2
)

// Execute runs the CLI with args against a and returns the process exit code.
func Execute(ctx context.Context, args []string, a *app.App, in io.Reader, out, errOut io.Writer) int {
	cmd := NewRootCommand(a, in, out, errOut)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(errOut, "usage: %v\n", err)
			return ExitInvalidUsage
		}
		var rtErr *runtimeError
		if !errors.As(err, &rtErr) {
			fmt.Fprintf(errOut, "%s: %v\n", kindOf(err), err)
		}
		return ExitRuntimeError
	}
	return ExitSuccess
}

// NewRootCommand builds the root CLI command tree.
func NewRootCommand(a *app.App, in io.Reader, out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "coursegen",
		Short:         "generate and manage course content",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &usageError{err: fmt.Errorf("unknown command %q", args[0])}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.PersistentFlags().Bool("json", false, "print JSON instead of tables")

	root.AddCommand(newLoginCommand(a))
	root.AddCommand(newLogoutCommand(a))
	root.AddCommand(newWhoAmICommand(a))
	root.AddCommand(newCourseCommand(a))
	root.AddCommand(newModuleCommand(a))
	root.AddCommand(newUnitCommand(a))
	root.AddCommand(newContentCommand(a))
	root.AddCommand(newGenerateCommand(a))
	root.AddCommand(newRegenerateCommand(a))
	root.AddCommand(newAssistCommand(a, "summary", "generate a unit summary"))
	root.AddCommand(newAssistCommand(a, "example", "generate worked examples"))
	root.AddCommand(newAssistCommand(a, "exercise", "generate exercises"))
	root.AddCommand(newBatchCommand(a))
	root.AddCommand(newNotificationsCommand(a))

	return root
}

type usageError struct {
	err error
}

func (u *usageError) Error() string {
	if u.err == nil {
		return "invalid usage"
	}
	return u.err.Error()
}

func requireArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &usageError{err: fmt.Errorf("%s requires %d argument(s)", cmd.Name(), n)}
		}
		return nil
	}
}

// parseIDs reads every positional argument as a positive id.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, raw := range args {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return nil, &usageError{err: fmt.Errorf("invalid id %q", raw)}
		}
		ids[i] = n
	}
	return ids, nil
}

// runtimeError marks a failure that has already been reported.
type runtimeError struct {
	err error
}

func (r *runtimeError) Error() string {
	if r.err == nil {
		return "runtime error"
	}
	return r.err.Error()
}

func (r *runtimeError) Unwrap() error { return r.err }

func kindOf(err error) string {
	if kind := apierr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

type errorOutput struct {
	Kind    string `json:"kind"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

func writeError(cmd *cobra.Command, err error) error {
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		return err
	}
	if jsonOutput(cmd) {
		out := errorOutput{Kind: kindOf(err), Message: err.Error()}
		var e *apierr.Error
		if errors.As(err, &e) {
			out.Status = e.Status
		}
		_ = writeJSON(cmd, out)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", kindOf(err), err)
	}
	return &runtimeError{err: err}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// render prints v as JSON under --json and as a table otherwise.
func render(cmd *cobra.Command, v any, header string, rows func(w io.Writer)) error {
	if jsonOutput(cmd) {
		return writeJSON(cmd, v)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, header)
	rows(w)
	return w.Flush()
}

// message prints a one-line confirmation, or {"message": ...} under --json.
func message(cmd *cobra.Command, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if jsonOutput(cmd) {
		return writeJSON(cmd, map[string]string{"message": msg})
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), msg)
	return err
}

func changedString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func changedInt(cmd *cobra.Command, name string) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt(name)
	return &v
}
