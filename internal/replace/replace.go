// Package replace applies ordered find/replace edits to files under a root.
package replace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/logger"
)

// Replacement is one literal edit. An empty Replace removes Find.
type Replacement struct {
	File          string `yaml:"file"`
	Find          string `yaml:"find"`
	Replace       string `yaml:"replace"`
	Origin        string `yaml:"origin,omitempty"`
	AllowNotFound bool   `yaml:"allow_not_found,omitempty"`
}

// Outcome classifies what a replacement did.
type Outcome string

const (
	Applied        Outcome = "applied"
	AlreadyApplied Outcome = "already-applied"
	NotFound       Outcome = "not-found"
)

// Change is the resolved effect of one replacement.
type Change struct {
	Replacement Replacement
	Path        string
	Before      string
	After       string
	Count       int
	Outcome     Outcome
}

// Diff renders a line diff of Before against After, one "-", "+" or " "
// prefixed line per source line.
func (c Change) Diff() string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(c.Before, c.After)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", c.Replacement.File, c.Replacement.File)
	for _, d := range diffs {
		var mark string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			mark = "-"
		case diffmatchpatch.DiffInsert:
			mark = "+"
		case diffmatchpatch.DiffEqual:
			mark = " "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(mark)
			sb.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

// Engine resolves and applies replacements. A lenient engine skips search
// texts it cannot find instead of failing.
type Engine struct {
	Lenient bool
}

// New returns a strict engine.
func New() *Engine {
	return &Engine{}
}

// Apply performs the replacements in order, writing each file back with
// its mode intact. The first error stops processing; earlier edits stay.
func (e *Engine) Apply(root string, replacements []Replacement) error {
	_, err := e.run(root, replacements, true)
	return err
}

// Plan resolves the replacements without touching disk. Edits to the same
// file compose in order.
func (e *Engine) Plan(root string, replacements []Replacement) ([]Change, error) {
	return e.run(root, replacements, false)
}

func (e *Engine) run(root string, replacements []Replacement, write bool) ([]Change, error) {
	log := logger.Component("replace")
	pending := map[string]string{}
	changes := make([]Change, 0, len(replacements))

	for _, r := range replacements {
		if r.Find == "" {
			return changes, herrors.NewConfigError(fmt.Sprintf("replacement for %s has an empty search text", r.File))
		}

		path := filepath.Join(root, filepath.FromSlash(r.File))
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return changes, &herrors.MissingFileError{File: r.File, Root: root, Origin: r.Origin}
		}

		before, ok := pending[path]
		if !ok {
			data, err := os.ReadFile(path)
			if err != nil {
				return changes, fmt.Errorf("read %s: %w", path, err)
			}
			before = string(data)
		}

		c, err := e.resolve(r, path, before)
		if err != nil {
			return changes, err
		}
		changes = append(changes, c)

		if c.Outcome != Applied {
			log.Debug("replacement skipped", "file", r.File, "outcome", c.Outcome)
			continue
		}
		pending[path] = c.After

		if write {
			if err := os.WriteFile(path, []byte(c.After), info.Mode().Perm()); err != nil {
				return changes, fmt.Errorf("write %s: %w", path, err)
			}
			log.Debug("replacement applied", "file", r.File, "count", c.Count)
		}
	}
	return changes, nil
}

func (e *Engine) resolve(r Replacement, path, content string) (Change, error) {
	c := Change{Replacement: r, Path: path, Before: content, After: content}

	n := strings.Count(content, r.Find)

	// An insertion keeps its search text. It counts as done only when every
	// occurrence of the search text sits inside a copy of the replacement.
	if n > 0 && r.Replace != "" && strings.Contains(r.Replace, r.Find) {
		if inside := strings.Count(content, r.Replace) * strings.Count(r.Replace, r.Find); inside > 0 && inside == n {
			c.Outcome = AlreadyApplied
			return c, nil
		}
	}

	if n > 0 {
		c.After = strings.ReplaceAll(content, r.Find, r.Replace)
		c.Count = n
		c.Outcome = Applied
		return c, nil
	}

	if e.Lenient || r.AllowNotFound {
		c.Outcome = NotFound
		if r.Replace != "" && strings.Contains(content, r.Replace) {
			c.Outcome = AlreadyApplied
		}
		return c, nil
	}
	return c, &herrors.ReplacementNotFoundError{File: r.File, Find: r.Find, Origin: r.Origin}
}
