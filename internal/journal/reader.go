package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Filter selects events. Zero values match everything.
type Filter struct {
	Component string
	Types     []string
	Level     string
	Last      int
}

// Read returns the events of key's journal in dir that match f.
func Read(dir, key string, f Filter) ([]Event, error) {
	events, err := readFile(filepath.Join(dir, key+".jsonl"))
	if err != nil {
		return nil, err
	}
	return apply(events, f), nil
}

// List returns the keys with a journal in dir, sorted.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	var keys []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			keys = append(keys, strings.TrimSuffix(e.Name(), ".jsonl"))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func readFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			// A torn final line from a killed process is skipped
			continue
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}

func apply(events []Event, f Filter) []Event {
	types := map[string]bool{}
	for _, t := range f.Types {
		types[t] = true
	}

	var out []Event
	for _, e := range events {
		if f.Component != "" && e.Component != f.Component {
			continue
		}
		if f.Level != "" && e.Level != f.Level {
			continue
		}
		if len(types) > 0 && !types[e.Type] {
			continue
		}
		out = append(out, e)
	}

	if f.Last > 0 && len(out) > f.Last {
		out = out[len(out)-f.Last:]
	}
	return out
}
