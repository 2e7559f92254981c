package main

import (
	"fmt"

	"github.com/spf13/cobra"

	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/journal"
)

var filesCmd = &cobra.Command{
	Use:   "files <details.yaml>",
	Short: "List the files the last generator run of a test case reported",
	Args:  cobra.ExactArgs(1),
	RunE:  runFiles,
}

func runFiles(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := loadDetails(args[0])
	if err != nil {
		return err
	}

	events, err := journal.Read(a.cfg.JournalDir(), d.UniqueCacheDirectoryName(), journal.Filter{
		Component: journal.ComponentMaker,
		Types:     []string{journal.TypeMakerEnd},
		Last:      1,
	})
	if err != nil || len(events) == 0 {
		return herrors.NewSetupError(fmt.Sprintf("no generator run recorded for %s; run makerkit run first", d.Name))
	}

	for _, f := range generatedFiles(events[0]) {
		fmt.Fprintln(cmd.OutOrStdout(), f)
	}
	return nil
}

// generatedFiles pulls the file list out of a decoded maker_end event.
func generatedFiles(e journal.Event) []string {
	data, _ := e.Data.(map[string]any)
	raw, _ := data["files"].([]any)
	files := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			files = append(files, s)
		}
	}
	return files
}
