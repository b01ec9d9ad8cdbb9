package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-admin-console/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// ExecuteContext runs the console CLI until it finishes or ctx is cancelled.
func ExecuteContext(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "console",
		Short: "Admin console session client",
		Long: `console drives the admin console's session authorization against a live
deployment: it enters protected routes, accepts invitation links and calls the
API with the stored session, printing every navigation the console performs.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			displayAppname(cmd.OutOrStdout(), config.New().GetAppName())
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(
		newRootRedirectCmd(),
		newEnterCmd(),
		newAcceptInviteCmd(),
		newGetCmd(),
		newCompleteProfileCmd(),
		newSignOutCmd(),
	)
	return rootCmd
}

// withApp loads configuration and wires the console before a subcommand runs.
func withApp(run func(cmd *cobra.Command, args []string, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(c.GetLogLevel(), c.GetEnv(), cmd.ErrOrStderr())

		a, err := newApp(cmd.Context(), c, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return run(cmd, args, a)
	}
}

// setupLogging writes human readable logs in the dev environment and JSON
// everywhere else.
func setupLogging(level, env string, w io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if strings.EqualFold(env, config.DevEnv) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	for _, row := range myFigure.Slicify() {
		fmt.Fprintln(w, row)
	}
	fmt.Fprintln(w)
}
