package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jrsteele09/go-admin-console/api"
	"github.com/jrsteele09/go-admin-console/profile"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newRootRedirectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "root",
		Short: "Redirect from the bare root using the stored session",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			a.console.RootRedirect(cmd.Context())
			return nil
		}),
	}
}

func newEnterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enter <path>",
		Short: "Enter a protected route and report whether it renders",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			out, err := a.console.EnterRoute(cmd.Context(), args[0])
			if err != nil {
				if out.Decision.Retry {
					fmt.Fprintln(cmd.OutOrStdout(), "profile unavailable, try again")
				}
				return err
			}
			if out.Render {
				fmt.Fprintf(cmd.OutOrStdout(), "render: %s\n", out.Path)
			}
			return nil
		}),
	}
}

func newAcceptInviteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept-invite <url>",
		Short: "Accept an invitation link and establish a session",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			s, err := a.console.AcceptInvitation(cmd.Context(), args[0])
			if s != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "signed in: %s\n", s.User.ID)
			}
			if err != nil {
				return errors.Wrap(err, "request a new invitation or sign in")
			}
			return nil
		}),
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Call the API with the stored session and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			raw, err := api.Get[json.RawMessage](cmd.Context(), a.api, args[0])
			if err != nil {
				return err
			}
			if len(raw) == 0 {
				return nil
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				return errors.Wrap(err, "[get] failed to format response")
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		}),
	}
}

func newCompleteProfileCmd() *cobra.Command {
	var form profile.CompletionForm

	cmd := &cobra.Command{
		Use:   "complete-profile",
		Short: "Fill in the mandatory profile fields",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			out, err := a.console.EnterRoute(cmd.Context(), a.routes.CompleteProfile)
			if err != nil {
				return err
			}
			if !out.Render {
				return nil
			}

			form.Password = os.Getenv("CONSOLE_NEW_PASSWORD")
			form.ConfirmPassword = os.Getenv("CONSOLE_CONFIRM_PASSWORD")
			p, err := a.console.CompleteProfile(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile complete: %s\n", p.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&form.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&form.Email, "email", "", "contact email")
	return cmd
}

func newSignOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			return a.console.SignOut(cmd.Context())
		}),
	}
}
