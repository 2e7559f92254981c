package main

import (
	"fmt"

	"github.com/spf13/cobra"

	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/fsutil"
	"github.com/silver2dream/makerkit/internal/replace"
)

var replaceCmd = &cobra.Command{
	Use:   "replace <details.yaml>",
	Short: "Apply a test case's replacements to its prepared working directory",
	Long: `Apply the replacements of a test case to its existing working directory.
With --dry-run nothing is written and a diff per change is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplace,
}

func init() {
	replaceCmd.Flags().Bool("dry-run", false, "Show the changes without writing them")
	replaceCmd.Flags().Bool("post-make", false, "Use the post-run replacements instead")
}

func runReplace(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := loadDetails(args[0])
	if err != nil {
		return err
	}

	dir := a.manager.DirFor(d)
	if !fsutil.IsDir(dir) {
		return herrors.NewSetupError(fmt.Sprintf("no working directory for %s; run makerkit prepare first", d.Name))
	}

	reps := d.Replacements
	if post, _ := cmd.Flags().GetBool("post-make"); post {
		reps = d.PostMakeReplacements
	}

	// The directory already carries the edits of its last prepare
	engine := &replace.Engine{Lenient: true}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		changes, err := engine.Plan(dir, reps)
		if err != nil {
			return err
		}
		for _, c := range changes {
			printChange(a, c)
		}
		return nil
	}

	if err := engine.Apply(dir, reps); err != nil {
		return err
	}
	a.out.Success(fmt.Sprintf("applied %d replacement(s) in %s", len(reps), dir))
	return nil
}

func printChange(a *app, c replace.Change) {
	header := fmt.Sprintf("%s (%s)", a.out.Cyan(c.Replacement.File), c.Outcome)
	switch c.Outcome {
	case replace.Applied:
		a.out.Info(fmt.Sprintf("%s, %d occurrence(s)", header, c.Count))
		a.out.Diff(c.Diff())
	default:
		a.out.Info(header)
	}
}
