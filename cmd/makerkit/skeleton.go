package main

import (
	"os"

	"github.com/spf13/cobra"

	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/journal"
	"github.com/silver2dream/makerkit/internal/skeleton"
)

var skeletonCmd = &cobra.Command{
	Use:   "skeleton",
	Short: "Build the cached skeleton project if it is missing",
	Args:  cobra.NoArgs,
	RunE:  runSkeleton,
}

func init() {
	skeletonCmd.Flags().Bool("rebuild", false, "Remove the cached skeleton first")
}

func runSkeleton(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if rebuild, _ := cmd.Flags().GetBool("rebuild"); rebuild {
		if err := os.RemoveAll(a.cfg.SkeletonDir()); err != nil {
			return herrors.NewSetupErrorWithCause("remove skeleton", err)
		}
	}

	j, err := journal.Open(a.cfg.JournalDir(), "skeleton")
	if err != nil {
		j = nil
	}
	defer j.Close()

	var sk *skeleton.Skeleton
	err = withSpinner("Building skeleton", func() error {
		var err error
		sk, err = skeleton.NewBuilder(a.cfg, a.runner, j).Ensure(cmd.Context())
		return err
	})
	if err != nil {
		return err
	}

	if sk.Built {
		a.out.Success("skeleton built")
	} else {
		a.out.Success("skeleton up to date")
	}
	a.out.Field("dir", sk.Dir)
	return nil
}
