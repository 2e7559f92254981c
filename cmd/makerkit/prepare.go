package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/silver2dream/makerkit/internal/details"
	"github.com/silver2dream/makerkit/internal/environment"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare <details.yaml>",
	Short: "Create or refresh the working directory of a test case",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrepare,
}

func runPrepare(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := loadDetails(args[0])
	if err != nil {
		return err
	}

	env, err := a.prepare(cmd.Context(), d)
	if err != nil {
		return err
	}
	defer env.Close()

	a.out.Success("environment ready: " + a.out.Bold(d.Name))
	a.out.Field("dir", env.Dir)
	a.out.Field("reused", boolString(env.Reused))
	return nil
}

func (a *app) prepare(ctx context.Context, d details.TestDetails) (*environment.Environment, error) {
	var env *environment.Environment
	err := withSpinner("Preparing "+d.Name, func() error {
		var err error
		env, err = a.manager.Prepare(ctx, d)
		return err
	})
	return env, err
}

func boolString(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
