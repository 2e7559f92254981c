// Package skeleton builds and caches the pristine project every test
// environment is cloned from.
package skeleton

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/silver2dream/makerkit/internal/config"
	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/fsutil"
	"github.com/silver2dream/makerkit/internal/journal"
	"github.com/silver2dream/makerkit/internal/lock"
	"github.com/silver2dream/makerkit/internal/logger"
	"github.com/silver2dream/makerkit/internal/process"
	"github.com/silver2dream/makerkit/internal/replace"
)

const (
	projectName = "flex_project"
	lockPoll    = 500 * time.Millisecond
)

// Executor runs subprocesses.
type Executor interface {
	Run(ctx context.Context, spec process.Spec) (*process.Result, error)
}

// Skeleton is the cached pristine project. Treat it as read-only.
type Skeleton struct {
	Dir string
	// Built is true when this call created the skeleton.
	Built bool
}

// Builder creates the skeleton at most once per cache directory.
type Builder struct {
	cfg     *config.Config
	exec    Executor
	engine  *replace.Engine
	journal *journal.Writer
}

// NewBuilder returns a Builder. j may be nil.
func NewBuilder(cfg *config.Config, exec Executor, j *journal.Writer) *Builder {
	return &Builder{cfg: cfg, exec: exec, engine: replace.New(), journal: j}
}

// Ensure returns the skeleton, building it first when absent. Concurrent
// callers, in this process or others, serialize on a lock file next to the
// skeleton; the loser waits and reuses the winner's result. A failed build
// leaves nothing behind.
func (b *Builder) Ensure(ctx context.Context) (*Skeleton, error) {
	dir := b.cfg.SkeletonDir()
	if fsutil.IsDir(dir) {
		b.journal.Info(journal.ComponentSkeleton, journal.TypeSkeletonReady, journal.WithData(map[string]any{"dir": dir}))
		return &Skeleton{Dir: dir}, nil
	}

	log := logger.Component("skeleton")
	if err := os.MkdirAll(b.cfg.CacheDir, 0o755); err != nil {
		return nil, herrors.NewSetupErrorWithCause("create cache directory", err)
	}

	l := lock.New(dir + ".lock")
	log.Debug("waiting for lock", "file", l.Path())
	if err := l.Acquire(ctx, lockPoll, b.cfg.Timeouts.LockWait); err != nil {
		return nil, herrors.NewSetupErrorWithCause("acquire skeleton lock", err)
	}
	defer l.Release()

	// Another process may have finished while we waited
	if fsutil.IsDir(dir) {
		return &Skeleton{Dir: dir}, nil
	}

	staging := dir + ".partial"
	if err := os.RemoveAll(staging); err != nil {
		return nil, herrors.NewSetupErrorWithCause("clear staging directory", err)
	}

	log.Info("building skeleton", "dir", dir)
	start := time.Now()
	if err := b.build(ctx, staging); err != nil {
		os.RemoveAll(staging)
		b.journal.Info(journal.ComponentSkeleton, journal.TypeSkeletonBuilt, journal.WithError(err))
		return nil, err
	}

	if err := os.Rename(filepath.Join(staging, projectName), dir); err != nil {
		os.RemoveAll(staging)
		return nil, herrors.NewSetupErrorWithCause("publish skeleton", err)
	}
	os.RemoveAll(staging)

	log.Info("skeleton ready", "dir", dir, "duration", time.Since(start).Round(time.Second))
	b.journal.Info(journal.ComponentSkeleton, journal.TypeSkeletonBuilt, journal.WithData(map[string]any{"dir": dir}))
	return &Skeleton{Dir: dir, Built: true}, nil
}

// build creates the project under staging/flex_project.
func (b *Builder) build(ctx context.Context, staging string) error {
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return herrors.NewSetupErrorWithCause("create staging directory", err)
	}

	if _, err := b.exec.Run(ctx, process.Spec{
		Command: b.cfg.Skeleton.CreateCommand,
		Dir:     staging,
		Timeout: b.cfg.Timeouts.Install,
	}); err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	project := filepath.Join(staging, projectName)
	if err := b.engine.Apply(project, BootstrapReplacements(b.cfg)); err != nil {
		return fmt.Errorf("bootstrap project: %w", err)
	}

	if len(b.cfg.Skeleton.Packages) > 0 {
		if _, err := b.exec.Run(ctx, process.Spec{
			Command: InstallCommand(b.cfg.Composer, b.cfg.Skeleton.Packages),
			Dir:     project,
			Timeout: b.cfg.Timeouts.Install,
		}); err != nil {
			return fmt.Errorf("install skeleton packages: %w", err)
		}
	}

	if _, err := b.exec.Run(ctx, process.Spec{
		Command: b.cfg.PHP + " bin/console cache:clear --no-warmup",
		Dir:     project,
		Timeout: b.cfg.Timeouts.Command,
	}); err != nil {
		return fmt.Errorf("warm framework cache: %w", err)
	}
	return nil
}

// InstallCommand is the composer line installing pkgs.
func InstallCommand(composer string, pkgs []string) string {
	return composer + " require " + process.Join(pkgs) + " --prefer-dist --no-progress --no-suggest"
}

const (
	frameworkBundleLine = `Symfony\Bundle\FrameworkBundle\FrameworkBundle::class => ['all' => true],`
	testsAutoloadLine   = `"App\\Tests\\": "tests/"`
)

// BootstrapReplacements registers the bundle under test and autoloads its
// sources from the plugin root.
func BootstrapReplacements(cfg *config.Config) []replace.Replacement {
	reps := []replace.Replacement{
		{
			File:    "config/bundles.php",
			Find:    frameworkBundleLine,
			Replace: frameworkBundleLine + "\n    " + cfg.Skeleton.BundleClass + "::class => ['all' => true],",
			Origin:  "skeleton bootstrap",
		},
	}

	if entries := cfg.AutoloadEntries(); len(entries) > 0 {
		reps = append(reps, replace.Replacement{
			File:    "composer.json",
			Find:    testsAutoloadLine,
			Replace: testsAutoloadLine + ",\n            " + strings.Join(entries, ",\n            "),
			Origin:  "skeleton bootstrap",
		})
	}
	return reps
}
