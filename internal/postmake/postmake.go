// Package postmake runs the steps that follow a generator run: post-run
// replacements, firewall authenticator bindings and post-run commands.
package postmake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/silver2dream/makerkit/internal/details"
	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/journal"
	"github.com/silver2dream/makerkit/internal/process"
	"github.com/silver2dream/makerkit/internal/replace"
	"github.com/silver2dream/makerkit/internal/yamledit"
)

// SecurityFile holds the firewall definitions.
const SecurityFile = "config/packages/security.yaml"

// Executor runs subprocesses.
type Executor interface {
	Run(ctx context.Context, spec process.Spec) (*process.Result, error)
}

// Options carries the collaborators Finalize needs.
type Options struct {
	Exec           Executor
	Engine         *replace.Engine
	CommandTimeout time.Duration
	Journal        *journal.Writer
}

// Finalize applies d's post-run steps to workDir in order. The first
// failure stops the pipeline.
func Finalize(ctx context.Context, opts Options, d details.TestDetails, workDir string) error {
	engine := opts.Engine
	if engine == nil {
		engine = replace.New()
	}

	if err := engine.Apply(workDir, d.PostMakeReplacements); err != nil {
		return err
	}

	if len(d.GuardAuthenticators) > 0 {
		if err := BindGuardAuthenticators(workDir, d.GuardAuthenticators); err != nil {
			return err
		}
		opts.Journal.Info(journal.ComponentPostMake, journal.TypeFirewalls, journal.WithData(d.GuardAuthenticators))
	}

	for _, c := range d.PostMakeCommands {
		if _, err := opts.Exec.Run(ctx, process.Spec{
			Command: c,
			Dir:     workDir,
			Timeout: opts.CommandTimeout,
		}); err != nil {
			return err
		}
		opts.Journal.Info(journal.ComponentPostMake, journal.TypeCommand, journal.WithData(c))
	}

	opts.Journal.Info(journal.ComponentPostMake, journal.TypeFinalized)
	return nil
}

// BindGuardAuthenticators sets security.firewalls.<name>.guard.authenticators
// to [id] for each binding, keeping the rest of the file intact. Every
// firewall must already exist.
func BindGuardAuthenticators(workDir string, bindings map[string]string) error {
	path := filepath.Join(workDir, filepath.FromSlash(SecurityFile))
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &herrors.MissingFileError{File: SecurityFile, Root: workDir, Origin: "guard authenticators"}
		}
		return fmt.Errorf("read %s: %w", SecurityFile, err)
	}

	m, err := yamledit.Parse(string(src))
	if err != nil {
		return err
	}
	data, err := m.Data()
	if err != nil {
		return err
	}

	security, _ := data["security"].(map[string]any)
	firewalls, _ := security["firewalls"].(map[string]any)

	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fw, ok := firewalls[name]
		if !ok {
			return &herrors.UnknownFirewallError{Firewall: name, File: SecurityFile}
		}
		conf, _ := fw.(map[string]any)
		if conf == nil {
			// A firewall declared as "main: ~" has no settings yet
			conf = map[string]any{}
		}
		conf["guard"] = map[string]any{"authenticators": []any{bindings[name]}}
		firewalls[name] = conf
	}

	if err := m.SetData(data); err != nil {
		return err
	}
	out, err := m.Contents()
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(out), info.Mode().Perm())
}
