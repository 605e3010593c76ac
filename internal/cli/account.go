package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/coursegen/internal/app"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

func newLoginCommand(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "store an access token",
		Args:  requireArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return writeError(cmd, err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if _, err := a.Account.Login(cmd.Context(), username, password); err != nil {
				return writeError(cmd, err)
			}
			return message(cmd, "logged in as %s", strings.TrimSpace(username))
		},
	}
	cmd.Flags().StringP("username", "u", os.Getenv("COURSEGEN_USERNAME"), "username")
	cmd.Flags().StringP("password", "p", os.Getenv("COURSEGEN_PASSWORD"), "password (read from stdin when empty)")
	return cmd
}

func newLogoutCommand(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "drop the stored token",
		Args:  requireArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.Account.Logout(); err != nil {
				return writeError(cmd, err)
			}
			return message(cmd, "logged out")
		},
	}
}

type tokenOutput struct {
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
}

func newWhoAmICommand(a *app.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "show the logged-in user",
		Args:  requireArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if offline, _ := cmd.Flags().GetBool("offline"); offline {
				info, ok, err := a.Account.Info()
				if !ok {
					return writeError(cmd, &apierr.Error{Kind: apierr.KindAuthentication, Message: "not logged in"})
				}
				if err != nil {
					return writeError(cmd, err)
				}
				out := tokenOutput{Subject: info.Subject, ExpiresAt: info.ExpiresAt, Expired: info.Expired(time.Now())}
				return render(cmd, out, "SUBJECT\tEXPIRES\tEXPIRED", func(w io.Writer) {
					fmt.Fprintf(w, "%s\t%s\t%v\n", out.Subject, out.ExpiresAt.Format(time.RFC3339), out.Expired)
				})
			}
			me, err := a.Account.Me(cmd.Context())
			if err != nil {
				return writeError(cmd, err)
			}
			return render(cmd, me, "ID\tUSERNAME\tEMAIL", func(w io.Writer) {
				fmt.Fprintf(w, "%d\t%s\t%s\n", me.ID, me.Username, me.Email)
			})
		},
	}
	cmd.Flags().Bool("offline", false, "decode the stored token instead of asking the backend")
	return cmd
}
