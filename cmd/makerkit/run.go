package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/silver2dream/makerkit/internal/environment"
	herrors "github.com/silver2dream/makerkit/internal/errors"
)

var runCmd = &cobra.Command{
	Use:   "run <details.yaml>",
	Short: "Prepare a test case and run its generator command",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Bool("internal-tests", false, "Run the project's own test suite afterwards")
	runCmd.Flags().StringSlice("lint", nil, "Check generated files with php-cs-fixer (repeatable)")
	runCmd.Flags().BoolP("verbose", "v", false, "Print the generator output")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := loadDetails(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	env, err := a.prepare(ctx, d)
	if err != nil {
		return err
	}
	defer env.Close()

	res, err := env.RunMaker(ctx)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose && res != nil {
		a.out.Info(res.Output())
	}
	if err != nil {
		return err
	}

	if res.Success {
		a.out.Success(fmt.Sprintf("%s finished in %s", d.Maker, res.Duration.Round(time.Millisecond)))
	} else {
		a.out.Warning(fmt.Sprintf("%s exited with code %d (allowed)", d.Maker, res.ExitCode))
	}
	if files := env.GeneratedFiles(); len(files) > 0 {
		a.out.Info("Generated files:")
		a.out.List(files)
	}

	lint, _ := cmd.Flags().GetStringSlice("lint")
	if err := lintFiles(cmd, a, env, lint); err != nil {
		return err
	}

	if internal, _ := cmd.Flags().GetBool("internal-tests"); internal {
		tests, err := env.RunInternalTests(ctx)
		if err != nil {
			return err
		}
		switch {
		case tests == nil:
			a.out.Info("no tests in project")
		case tests.Success:
			a.out.Success("project tests passed")
		default:
			a.out.Info(tests.Output())
			return &herrors.ProcessFailedError{Command: tests.Command, Dir: tests.Dir, ExitCode: tests.ExitCode}
		}
	}
	return nil
}

func lintFiles(cmd *cobra.Command, a *app, env *environment.Environment, files []string) error {
	var failed int
	for _, f := range files {
		res, err := env.RunLinter(cmd.Context(), f)
		if err != nil {
			return err
		}
		if res.Success {
			a.out.Success("lint " + f)
			continue
		}
		failed++
		a.out.Error("lint " + f)
		a.out.Diff(res.Stdout)
	}
	if failed > 0 {
		return herrors.NewGeneralError(fmt.Sprintf("%d file(s) failed linting", failed))
	}
	return nil
}
