package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/silver2dream/makerkit/internal/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal [details.yaml]",
	Short: "Show the event journal of a test case's environment",
	Example: `  makerkit journal --list
  makerkit journal tests/cases/api.yaml --level error
  makerkit journal --key maker_1a2b3c4d5e --json > events.jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJournal,
}

func init() {
	f := journalCmd.Flags()
	f.String("key", "", "Journal key (working directory name)")
	f.String("component", "", "Filter by component: skeleton, environment, maker, postmake, runner")
	f.String("level", "", "Filter by level: info, error")
	f.Int("last", 0, "Show only the last N events")
	f.Bool("json", false, "Output raw JSON lines")
	f.Bool("list", false, "List available journals")
}

func runJournal(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	flags := cmd.Flags()
	w := cmd.OutOrStdout()

	if list, _ := flags.GetBool("list"); list {
		keys, err := journal.List(a.cfg.JournalDir())
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Fprintln(w, "No journals found")
			return nil
		}
		a.out.List(keys)
		return nil
	}

	key, _ := flags.GetString("key")
	if key == "" {
		if len(args) == 0 {
			return fmt.Errorf("either a details file or --key is required")
		}
		d, err := loadDetails(args[0])
		if err != nil {
			return err
		}
		key = d.UniqueCacheDirectoryName()
	}

	filter := journal.Filter{}
	filter.Component, _ = flags.GetString("component")
	filter.Level, _ = flags.GetString("level")
	filter.Last, _ = flags.GetInt("last")

	events, err := journal.Read(a.cfg.JournalDir(), key, filter)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found")
		return nil
	}

	if asJSON, _ := flags.GetBool("json"); asJSON {
		for _, e := range events {
			data, _ := json.Marshal(e)
			fmt.Fprintln(w, string(data))
		}
		return nil
	}

	for _, e := range events {
		line := fmt.Sprintf("%4d %s [%s] %s", e.Seq, e.Timestamp.Format("15:04:05.000"), e.Component, e.Type)
		if e.Error != "" {
			a.out.Error(line + ": " + e.Error)
			continue
		}
		if e.Data != nil {
			data, _ := json.Marshal(e.Data)
			line += " " + string(data)
		}
		a.out.Info(line)
	}
	return nil
}
