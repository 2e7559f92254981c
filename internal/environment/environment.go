// Package environment prepares per-test working directories cloned from the
// skeleton and runs the generator command inside them.
package environment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/silver2dream/makerkit/internal/config"
	"github.com/silver2dream/makerkit/internal/deps"
	"github.com/silver2dream/makerkit/internal/details"
	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/fsutil"
	"github.com/silver2dream/makerkit/internal/journal"
	"github.com/silver2dream/makerkit/internal/lock"
	"github.com/silver2dream/makerkit/internal/logger"
	"github.com/silver2dream/makerkit/internal/postmake"
	"github.com/silver2dream/makerkit/internal/process"
	"github.com/silver2dream/makerkit/internal/replace"
	"github.com/silver2dream/makerkit/internal/skeleton"
)

const (
	gitignore = "var/cache/\nvendor/\n"
	lockPoll  = 250 * time.Millisecond
)

// Executor runs subprocesses.
type Executor interface {
	Run(ctx context.Context, spec process.Spec) (*process.Result, error)
}

// Manager prepares environments under the configured cache directory.
type Manager struct {
	cfg      *config.Config
	exec     Executor
	skeleton *skeleton.Builder
	resolver *deps.Resolver
}

// NewManager returns a Manager that runs every subprocess through exec.
func NewManager(cfg *config.Config, exec Executor) *Manager {
	resolver := deps.NewResolver(exec)
	resolver.PHP = cfg.PHP
	return &Manager{
		cfg:      cfg,
		exec:     exec,
		skeleton: skeleton.NewBuilder(cfg, exec, nil),
		resolver: resolver,
	}
}

// Environment is a prepared working directory for one test case.
type Environment struct {
	cfg     *config.Config
	exec    Executor
	details details.TestDetails
	journal *journal.Writer

	// Dir is the working directory.
	Dir string
	// Reused is true when Dir existed before Prepare.
	Reused bool

	makerResult *process.Result
}

// DirFor returns the working directory d would use.
func (m *Manager) DirFor(d details.TestDetails) string {
	return filepath.Join(m.cfg.CacheDir, d.UniqueCacheDirectoryName())
}

// Prepare ensures the skeleton, creates the working directory for d when
// absent and applies d's per-test setup. The per-test steps run on every
// call and are idempotent on a reused directory.
func (m *Manager) Prepare(ctx context.Context, d details.TestDetails) (*Environment, error) {
	log := logger.Component("environment")
	key := d.UniqueCacheDirectoryName()

	j, err := journal.Open(m.cfg.JournalDir(), key)
	if err != nil {
		log.Warn("journal disabled", "error", err)
		j = nil
	}

	sk, err := m.skeleton.Ensure(ctx)
	if err != nil {
		j.Close()
		return nil, err
	}

	env := &Environment{
		cfg:     m.cfg,
		exec:    m.exec,
		details: d,
		journal: j,
		Dir:     filepath.Join(m.cfg.CacheDir, key),
	}

	l := lock.New(env.Dir + ".lock")
	if err := l.Acquire(ctx, lockPoll, m.cfg.Timeouts.LockWait); err != nil {
		j.Close()
		return nil, herrors.NewSetupErrorWithCause("acquire environment lock", err)
	}
	defer l.Release()

	j.Info(journal.ComponentEnvironment, journal.TypePrepareStart, journal.WithData(map[string]any{"dir": env.Dir, "test": d.Name}))

	if err := m.prepare(ctx, env, sk.Dir); err != nil {
		j.Info(journal.ComponentEnvironment, journal.TypePrepareEnd, journal.WithError(err))
		j.Close()
		return nil, err
	}

	j.Info(journal.ComponentEnvironment, journal.TypePrepareEnd)
	log.Debug("environment ready", "dir", env.Dir, "reused", env.Reused)
	return env, nil
}

func (m *Manager) prepare(ctx context.Context, env *Environment, skeletonDir string) error {
	d := env.details

	if fsutil.IsDir(env.Dir) {
		env.Reused = true
	} else if err := m.create(ctx, env, skeletonDir); err != nil {
		os.RemoveAll(env.Dir)
		env.journal.Info(journal.ComponentEnvironment, journal.TypeWorkingDirRemoved, journal.WithError(err))
		return err
	}

	if d.FixtureFilesPath != "" {
		copied, err := fsutil.CopyFiles(d.FixtureFilesPath, env.Dir)
		if err != nil {
			return herrors.NewSetupErrorWithCause("copy fixture files", err)
		}
		env.journal.Info(journal.ComponentEnvironment, journal.TypeFixturesCopied, journal.WithData(copied))
	}

	// A reused directory already carries earlier edits, including removals
	engine := &replace.Engine{Lenient: m.cfg.Replacement.Lenient || env.Reused}
	if err := engine.Apply(env.Dir, d.Replacements); err != nil {
		return err
	}
	if len(d.Replacements) > 0 {
		env.journal.Info(journal.ComponentEnvironment, journal.TypeReplacements, journal.WithData(len(d.Replacements)))
	}

	var deleted []string
	for _, f := range d.FilesToDelete {
		p := filepath.Join(env.Dir, filepath.FromSlash(f))
		if !fsutil.Exists(p) {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return herrors.NewSetupErrorWithCause("delete "+f, err)
		}
		deleted = append(deleted, f)
	}
	if len(deleted) > 0 {
		env.journal.Info(journal.ComponentEnvironment, journal.TypeFilesDeleted, journal.WithData(deleted))
	}

	return env.run(ctx, m.cfg.Composer+" dump-autoload", m.cfg.Timeouts.Command)
}

// create builds a fresh working directory from the skeleton.
func (m *Manager) create(ctx context.Context, env *Environment, skeletonDir string) error {
	d := env.details

	if err := fsutil.Mirror(skeletonDir, env.Dir); err != nil {
		return herrors.NewSetupErrorWithCause("mirror skeleton", err)
	}
	env.journal.Info(journal.ComponentEnvironment, journal.TypeMirrored)

	var missing []string
	if len(d.Requirements) > 0 {
		var err error
		if missing, err = m.resolver.Missing(ctx, env.Dir, d.Requirements); err != nil {
			return err
		}
	}
	if pkgs := deps.Merge(missing, d.ExtraDependencies); len(pkgs) > 0 {
		if _, err := m.exec.Run(ctx, process.Spec{
			Command: m.cfg.Composer + " require " + process.Join(pkgs),
			Dir:     env.Dir,
			Timeout: m.cfg.Timeouts.Install,
		}); err != nil {
			return fmt.Errorf("install dependencies: %w", err)
		}
		env.journal.Info(journal.ComponentEnvironment, journal.TypeDepsInstalled, journal.WithData(pkgs))
	}

	if reps := NamespaceReplacements(env.Dir, d.Namespace()); len(reps) > 0 {
		if err := replace.New().Apply(env.Dir, reps); err != nil {
			return err
		}
		env.journal.Info(journal.ComponentEnvironment, journal.TypeNamespaceRewrite, journal.WithData(d.Namespace()))
	}

	if err := os.WriteFile(filepath.Join(env.Dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return herrors.NewSetupErrorWithCause("write .gitignore", err)
	}
	return nil
}

// NamespaceReplacements moves the skeleton from App to ns. It returns
// nothing for App. The doctrine mapping is rewritten only when dir has one.
func NamespaceReplacements(dir, ns string) []replace.Replacement {
	if ns == details.DefaultRootNamespace {
		return nil
	}

	const origin = "root namespace"
	reps := []replace.Replacement{
		{File: "composer.json", Find: `"App\\": "src/"`, Replace: `"` + ns + `\\": "src/"`, Origin: origin},
		{File: "src/Kernel.php", Find: "namespace App", Replace: "namespace " + ns, Origin: origin},
		{File: "bin/console", Find: `use App\Kernel`, Replace: "use " + ns + `\Kernel`, Origin: origin},
		{File: "public/index.php", Find: `use App\Kernel`, Replace: "use " + ns + `\Kernel`, Origin: origin},
		{File: "config/services.yaml", Find: `App\`, Replace: ns + `\`, Origin: origin},
		{
			File:    "phpunit.xml.dist",
			Find:    `<env name="KERNEL_CLASS" value="App\Kernel" />`,
			Replace: `<env name="KERNEL_CLASS" value="` + ns + `\Kernel" />`,
			Origin:  origin,
		},
	}

	if fsutil.Exists(filepath.Join(dir, "config", "packages", "doctrine.yaml")) {
		reps = append(reps, replace.Replacement{File: "config/packages/doctrine.yaml", Find: "App", Replace: ns, Origin: origin})
	}
	return reps
}

// Path returns the working directory.
func (e *Environment) Path() string {
	return e.Dir
}

// Details returns the test case the environment was prepared for.
func (e *Environment) Details() details.TestDetails {
	return e.details
}

// Config returns the harness configuration.
func (e *Environment) Config() *config.Config {
	return e.cfg
}

// Journal returns the environment's event journal. It may be nil.
func (e *Environment) Journal() *journal.Writer {
	return e.journal
}

// Close flushes the journal. The working directory stays on disk.
func (e *Environment) Close() error {
	return e.journal.Close()
}

// MakerCommand is the generator command line for d.
func MakerCommand(php string, d details.TestDetails) string {
	parts := []string{php, "bin/console", d.Maker}
	if args := d.ArgumentsString(); args != "" {
		parts = append(parts, args)
	}
	return strings.Join(append(parts, "--no-ansi"), " ")
}

// RunMaker runs the pre-run commands, clears the framework cache, runs the
// generator with the scripted inputs and finalizes the result.
func (e *Environment) RunMaker(ctx context.Context) (*process.Result, error) {
	d := e.details

	for _, c := range d.PreMakeCommands {
		if err := e.run(ctx, c, e.cfg.Timeouts.Command); err != nil {
			return nil, err
		}
	}

	if err := os.RemoveAll(filepath.Join(e.Dir, "var", "cache")); err != nil {
		return nil, herrors.NewSetupErrorWithCause("clear framework cache", err)
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeouts.Maker
	}

	command := MakerCommand(e.cfg.PHP, d)
	e.journal.Info(journal.ComponentMaker, journal.TypeMakerStart, journal.WithData(command))

	res, err := e.exec.Run(ctx, process.Spec{
		Command:      command,
		Dir:          e.Dir,
		Timeout:      timeout,
		Inputs:       d.Inputs,
		Env:          map[string]string{"SHELL_INTERACTIVE": "1"},
		AllowFailure: d.AllowedToFail,
		UsePTY:       d.UsePTY || e.cfg.UsePTY,
	})
	if err != nil {
		e.journal.Info(journal.ComponentMaker, journal.TypeMakerEnd, journal.WithError(err))
		return nil, err
	}
	e.makerResult = res
	e.journal.Info(journal.ComponentMaker, journal.TypeMakerEnd, journal.WithData(map[string]any{
		"exit_code": res.ExitCode,
		"duration":  res.Duration.String(),
		"files":     ParseGeneratedFiles(res.Stdout),
	}))

	if err := postmake.Finalize(ctx, postmake.Options{
		Exec:           e.exec,
		Engine:         &replace.Engine{Lenient: e.cfg.Replacement.Lenient},
		CommandTimeout: e.cfg.Timeouts.Command,
		Journal:        e.journal,
	}, d, e.Dir); err != nil {
		return res, err
	}
	return res, nil
}

// MakerResult returns the last generator run, or nil.
func (e *Environment) MakerResult() *process.Result {
	return e.makerResult
}

var generatedRe = regexp.MustCompile(`(?i)(created|updated): (.*)\n`)

// GeneratedFiles lists the files the last generator run reported.
func (e *Environment) GeneratedFiles() []string {
	if e.makerResult == nil {
		return nil
	}
	return ParseGeneratedFiles(e.makerResult.Stdout)
}

// ParseGeneratedFiles extracts the paths of "created:" and "updated:" lines.
func ParseGeneratedFiles(output string) []string {
	var files []string
	for _, m := range generatedRe.FindAllStringSubmatch(output, -1) {
		files = append(files, strings.TrimSpace(m[2]))
	}
	return files
}

// FileExists reports whether rel exists in the working directory.
func (e *Environment) FileExists(rel string) bool {
	return fsutil.Exists(filepath.Join(e.Dir, filepath.FromSlash(rel)))
}

// RunCommand runs line in the working directory and fails on non-zero exit.
func (e *Environment) RunCommand(ctx context.Context, line string) (*process.Result, error) {
	res, err := e.exec.Run(ctx, process.Spec{Command: line, Dir: e.Dir, Timeout: e.cfg.Timeouts.Command})
	if err == nil {
		e.journal.Info(journal.ComponentRunner, journal.TypeCommand, journal.WithData(line))
	}
	return res, err
}

// Execute runs spec as given. The caller sets Dir.
func (e *Environment) Execute(ctx context.Context, spec process.Spec) (*process.Result, error) {
	return e.exec.Run(ctx, spec)
}

func (e *Environment) run(ctx context.Context, line string, timeout time.Duration) error {
	_, err := e.exec.Run(ctx, process.Spec{Command: line, Dir: e.Dir, Timeout: timeout})
	if err != nil {
		return err
	}
	e.journal.Info(journal.ComponentEnvironment, journal.TypeCommand, journal.WithData(line))
	return nil
}

// CreateInteractiveCommand returns a spec that runs a console command in
// the working directory, answering its prompts with inputs.
func (e *Environment) CreateInteractiveCommand(command string, inputs []string, args ...string) process.Spec {
	parts := append([]string{e.cfg.PHP, "bin/console", command}, args...)
	return process.Spec{
		Command: strings.Join(parts, " "),
		Dir:     e.Dir,
		Timeout: e.cfg.Timeouts.Command,
		Inputs:  inputs,
		Env:     map[string]string{"SHELL_INTERACTIVE": "1"},
	}
}

// RunLinter checks file with php-cs-fixer in dry-run mode. The result
// reports style violations through Success.
func (e *Environment) RunLinter(ctx context.Context, file string) (*process.Result, error) {
	line := fmt.Sprintf("%s vendor/bin/php-cs-fixer --config=%s fix --dry-run --diff %s",
		e.cfg.PHP, process.Quote(e.cfg.Tools.PHPCSFixerConfig), process.Quote(filepath.Join(e.Dir, file)))
	return e.exec.Run(ctx, process.Spec{Command: line, Dir: e.cfg.PluginRoot, Timeout: e.cfg.Timeouts.Command, AllowFailure: true})
}

// RunTemplateLinter checks a template file with twigcs.
func (e *Environment) RunTemplateLinter(ctx context.Context, file string) (*process.Result, error) {
	line := fmt.Sprintf("%s vendor/bin/twigcs lint %s", e.cfg.PHP, process.Quote(filepath.Join(e.Dir, file)))
	return e.exec.Run(ctx, process.Spec{Command: line, Dir: e.cfg.PluginRoot, Timeout: e.cfg.Timeouts.Command, AllowFailure: true})
}

// RunInternalTests runs the test suite copied into the project. It returns
// nil when the project has no tests.
func (e *Environment) RunInternalTests(ctx context.Context) (*process.Result, error) {
	if !fsutil.HasFiles(filepath.Join(e.Dir, "tests")) {
		return nil, nil
	}
	line := e.cfg.PHP + " " + process.Quote(e.cfg.Tools.InternalTests)
	return e.exec.Run(ctx, process.Spec{Command: line, Dir: e.Dir, Timeout: e.cfg.Timeouts.Install, AllowFailure: true})
}

var versionRe = regexp.MustCompile(`\d+\.\d+\.\d+`)

// FrameworkVersion returns the framework version installed in the project.
func (e *Environment) FrameworkVersion(ctx context.Context) (*semver.Version, error) {
	res, err := e.exec.Run(ctx, process.Spec{
		Command: e.cfg.PHP + " bin/console --version --no-ansi",
		Dir:     e.Dir,
		Timeout: e.cfg.Timeouts.Command,
	})
	if err != nil {
		return nil, err
	}
	raw := versionRe.FindString(res.Stdout)
	if raw == "" {
		return nil, fmt.Errorf("no version in %q", strings.TrimSpace(res.Stdout))
	}
	return semver.NewVersion(raw)
}

// ClassExists reports whether class is autoloadable in the project.
func (e *Environment) ClassExists(ctx context.Context, class string) (bool, error) {
	script := fmt.Sprintf("require 'vendor/autoload.php'; echo class_exists(%s) ? 'yes' : 'no';", phpString(class))
	res, err := e.exec.Run(ctx, process.Spec{
		Command: e.cfg.PHP + " -r " + process.Quote(script),
		Dir:     e.Dir,
		Timeout: e.cfg.Timeouts.Command,
	})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) == "yes", nil
}

// phpString is a single-quoted PHP literal.
func phpString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
