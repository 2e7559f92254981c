package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/silver2dream/makerkit/internal/config"
	"github.com/silver2dream/makerkit/internal/details"
	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/environment"
	"github.com/silver2dream/makerkit/internal/logger"
	"github.com/silver2dream/makerkit/internal/process"
	"github.com/silver2dream/makerkit/internal/ui"
)

// app bundles what every command needs.
type app struct {
	cfg     *config.Config
	out     *ui.OutputFormatter
	runner  *process.Runner
	manager *environment.Manager
	closers []io.Closer
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, herrors.NewConfigErrorWithCause("load config", err)
	}
	if dir := viper.GetString("cache-dir"); dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		cfg.SetCacheDir(dir)
	}
	if viper.GetBool("pty") {
		cfg.UsePTY = true
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if file := viper.GetString("log-file"); file != "" {
		cfg.Log.File = file
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, herrors.NewConfigErrorWithCause("invalid config", joinErrors(errs))
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, herrors.NewConfigErrorWithCause("configure logger", err)
	}

	a := &app{cfg: cfg, out: ui.NewOutputFormatter(cmd.OutOrStdout())}

	var transcript io.Writer
	if cfg.Log.Transcripts {
		rl, err := logger.NewRotatingLogger(cfg.Log.TranscriptDir, "transcript")
		if err != nil {
			return nil, herrors.NewSetupErrorWithCause("open transcript", err)
		}
		transcript = rl
		a.closers = append(a.closers, rl)
		logger.Debug("recording transcripts", "file", rl.FilePath())
	}

	a.runner = process.NewRunner(transcript)
	a.manager = environment.NewManager(cfg, a.runner)
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		c.Close()
	}
}

// loadDetails reads and validates a test case file.
func loadDetails(path string) (details.TestDetails, error) {
	d, err := details.Load(path)
	if err != nil {
		return d, herrors.NewConfigErrorWithCause("load test details", err)
	}
	if errs := d.Validate(); len(errs) > 0 {
		return d, herrors.NewConfigErrorWithCause(fmt.Sprintf("invalid test details %s", path), joinErrors(errs))
	}
	return d, nil
}

// withSpinner runs fn while a spinner shows label on stderr.
func withSpinner(label string, fn func() error) error {
	s := ui.NewSpinner(label, os.Stderr)
	s.Start()
	err := fn()
	s.Stop("")
	return err
}

func joinErrors[E error](errs []E) error {
	causes := make([]error, len(errs))
	for i, e := range errs {
		causes[i] = e
	}
	return errors.Join(causes...)
}
