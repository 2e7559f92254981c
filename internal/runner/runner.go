// Package runner is the test-facing facade over a prepared environment:
// run the generator, edit project files and run checks inside the project.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/silver2dream/makerkit/internal/classedit"
	"github.com/silver2dream/makerkit/internal/environment"
	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/fsutil"
	"github.com/silver2dream/makerkit/internal/process"
	"github.com/silver2dream/makerkit/internal/replace"
	"github.com/silver2dream/makerkit/internal/yamledit"
)

const (
	testsAutoloadLine = `"App\\Tests\\": "tests/",`
	dbnameSuffixLine  = "dbname_suffix: '_test%env(default::TEST_TOKEN)%'"
	legacyPassport    = "< 5.4"
)

// ErrMakerNotRun is returned by accessors that need a finished generator run.
var ErrMakerNotRun = errors.New("maker process has not been executed yet")

// TestsFailedError is returned by RunTests when the project's own test
// suite fails. It carries both the suite's and the generator's output.
type TestsFailedError struct {
	Output      string
	MakerOutput string
}

func (e *TestsFailedError) Error() string {
	return fmt.Sprintf("error while running the PHPUnit tests *in* the project:\n\n%s\n\nCommand Output:\n%s",
		strings.TrimSpace(e.Output), strings.TrimSpace(e.MakerOutput))
}

// ExitCode implements the exit-code contract of internal/errors.
func (e *TestsFailedError) ExitCode() int { return herrors.ExitProcessError }

// Runner wraps an Environment.
type Runner struct {
	env *environment.Environment
	// FixturesDir is where Copy looks up sources.
	FixturesDir string
}

// New returns a Runner for env, copying fixtures from
// <plugin root>/tests/fixtures.
func New(env *environment.Environment) *Runner {
	return &Runner{
		env:         env,
		FixturesDir: filepath.Join(env.Config().PluginRoot, "tests", "fixtures"),
	}
}

// Environment returns the wrapped environment.
func (r *Runner) Environment() *environment.Environment {
	return r.env
}

// RunMaker runs the generator and returns its stdout.
func (r *Runner) RunMaker(ctx context.Context) (string, error) {
	res, err := r.env.RunMaker(ctx)
	if res == nil {
		return "", err
	}
	return res.Stdout, err
}

// ExecutedMakerProcess returns the last generator run.
func (r *Runner) ExecutedMakerProcess() (*process.Result, error) {
	if res := r.env.MakerResult(); res != nil {
		return res, nil
	}
	return nil, ErrMakerNotRun
}

// GeneratedFiles lists the files the last generator run reported.
func (r *Runner) GeneratedFiles() []string {
	return r.env.GeneratedFiles()
}

// Path resolves file inside the working directory.
func (r *Runner) Path(file string) string {
	return filepath.Join(r.env.Dir, filepath.FromSlash(file))
}

// Copy copies a fixture file to destination. A fixture directory is copied
// file by file under destination.
func (r *Runner) Copy(source, destination string) error {
	src := filepath.Join(r.FixturesDir, filepath.FromSlash(source))
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("cannot find file %q: %w", src, err)
	}
	if !info.IsDir() {
		_, err := fsutil.CopyFile(src, r.Path(destination))
		return err
	}
	_, err = fsutil.CopyFiles(src, r.Path(destination))
	return err
}

// WriteFile writes contents to file, creating parent directories.
func (r *Runner) WriteFile(file, contents string) error {
	p := r.Path(file)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(contents), 0o644)
}

// DeleteFile removes file or directory. A missing path is not an error.
func (r *Runner) DeleteFile(file string) error {
	return os.RemoveAll(r.Path(file))
}

// ReadYAML decodes file into a map.
func (r *Runner) ReadYAML(file string) (map[string]any, error) {
	data, err := os.ReadFile(r.Path(file))
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return out, nil
}

// ReadYAMLPath decodes the node at query (for example
// "$.security.firewalls.main") of file into v.
func (r *Runner) ReadYAMLPath(file, query string, v any) error {
	path, err := yaml.PathString(query)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", query, err)
	}
	data, err := os.ReadFile(r.Path(file))
	if err != nil {
		return err
	}
	if err := path.Read(bytes.NewReader(data), v); err != nil {
		return fmt.Errorf("read %s at %s: %w", file, query, err)
	}
	return nil
}

// ModifyYAMLFile passes the decoded contents of file to fn and writes back
// what fn returns, keeping comments and key order where values are unchanged.
func (r *Runner) ModifyYAMLFile(file string, fn func(map[string]any) (map[string]any, error)) error {
	p := r.Path(file)
	src, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	m, err := yamledit.Parse(string(src))
	if err != nil {
		return err
	}
	data, err := m.Data()
	if err != nil {
		return err
	}

	updated, err := fn(data)
	if err != nil {
		return err
	}
	if updated == nil {
		return herrors.NewGeneralError("the ModifyYAMLFile callback must return the final map of data")
	}
	if err := m.SetData(updated); err != nil {
		return err
	}
	out, err := m.Contents()
	if err != nil {
		return err
	}
	return os.WriteFile(p, []byte(out), 0o644)
}

// ManipulateClass passes the source of file to fn and writes back the result.
func (r *Runner) ManipulateClass(file string, fn func(*classedit.Manipulator) error) error {
	p := r.Path(file)
	src, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	m := classedit.New(string(src))
	if err := fn(m); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(m.SourceCode()), 0o644)
}

// ReplaceInFile replaces every occurrence of find in file.
func (r *Runner) ReplaceInFile(file, find, replaceWith string, allowNotFound bool) error {
	return replace.New().Apply(r.env.Dir, []replace.Replacement{{
		File:          file,
		Find:          find,
		Replace:       replaceWith,
		Origin:        "runner",
		AllowNotFound: allowNotFound,
	}})
}

// RemoveFromFile deletes every occurrence of find in file.
func (r *Runner) RemoveFromFile(file, find string, allowNotFound bool) error {
	return r.ReplaceInFile(file, find, "", allowNotFound)
}

// RunProcess runs command in the working directory.
func (r *Runner) RunProcess(ctx context.Context, command string) error {
	_, err := r.env.RunCommand(ctx, command)
	return err
}

// RunConsole runs a console command, answering prompts with inputs.
func (r *Runner) RunConsole(ctx context.Context, command string, inputs []string, args ...string) error {
	_, err := r.env.Execute(ctx, r.env.CreateInteractiveCommand(command, inputs, args...))
	return err
}

// ConfigureDatabase points the project at the test database and recreates
// it. The DSN comes from TEST_DATABASE_DSN or database.dsn.
func (r *Runner) ConfigureDatabase(ctx context.Context, createSchema bool) error {
	dsn := r.env.Config().Database.DSN
	if dsn == "" {
		return herrors.NewConfigError("no test database configured: set TEST_DATABASE_DSN")
	}

	data, err := os.ReadFile(r.Path(".env"))
	if err != nil {
		return fmt.Errorf("failed to read .env file: %w", err)
	}
	vars, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return fmt.Errorf("failed to parse .env file: %w", err)
	}
	current := vars["DATABASE_URL"]
	if current == "" {
		return herrors.NewSetupError("DATABASE_URL is not defined in .env")
	}
	if current != dsn {
		if err := r.ReplaceInFile(".env", current, dsn, false); err != nil {
			return err
		}
	}

	// Flex suffixes the test database name; these tests use the DSN as is
	if err := r.RemoveFromFile("config/packages/test/doctrine.yaml", dbnameSuffixLine, true); err != nil {
		return err
	}

	// Creating first makes the drop safe; SQLite has no --if-not-exists
	if !strings.HasPrefix(dsn, "sqlite://") {
		if err := r.RunConsole(ctx, "doctrine:database:create", nil, "--env=test", "--if-not-exists"); err != nil {
			return err
		}
	}
	if err := r.RunConsole(ctx, "doctrine:database:drop", nil, "--env=test", "--force"); err != nil {
		return err
	}
	if err := r.RunConsole(ctx, "doctrine:database:create", nil, "--env=test"); err != nil {
		return err
	}
	if createSchema {
		return r.RunConsole(ctx, "doctrine:schema:create", nil, "--env=test")
	}
	return nil
}

// UpdateSchema syncs the test database schema with the mapping.
func (r *Runner) UpdateSchema(ctx context.Context) error {
	return r.RunConsole(ctx, "doctrine:schema:update", nil, "--env=test", "--force")
}

// RunTests runs the project's own test suite.
func (r *Runner) RunTests(ctx context.Context) error {
	cfg := r.env.Config()
	res, err := r.env.Execute(ctx, process.Spec{
		Command:      cfg.PHP + " " + process.Quote(r.Path("bin/phpunit")),
		Dir:          r.env.Dir,
		Timeout:      cfg.Timeouts.Install,
		AllowFailure: true,
	})
	if err != nil {
		return err
	}
	if res.Success {
		return nil
	}

	tf := &TestsFailedError{Output: res.Stderr + "\n" + res.Stdout}
	if maker := r.env.MakerResult(); maker != nil {
		tf.MakerOutput = maker.Stderr + "\n" + maker.Stdout
	}
	return tf
}

// AddToAutoloader maps namespace to path in the project's dev autoloader.
func (r *Runner) AddToAutoloader(ctx context.Context, namespace, path string) error {
	entry := fmt.Sprintf(`"%s": "%s",`, strings.ReplaceAll(namespace, `\`, `\\`), path)
	if err := r.ReplaceInFile("composer.json", testsAutoloadLine, testsAutoloadLine+"\n            "+entry, false); err != nil {
		return err
	}
	return r.RunProcess(ctx, r.env.Config().Composer+" dump-autoload")
}

// FrameworkVersion returns the framework version installed in the project.
func (r *Runner) FrameworkVersion(ctx context.Context) (*semver.Version, error) {
	return r.env.FrameworkVersion(ctx)
}

// ClassExists reports whether class is autoloadable in the project.
func (r *Runner) ClassExists(ctx context.Context, class string) (bool, error) {
	return r.env.ClassExists(ctx, class)
}

// AdjustAuthenticatorForLegacyPassport rewrites an authenticator fixture to
// return PassportInterface on framework versions before 5.4.
func (r *Runner) AdjustAuthenticatorForLegacyPassport(ctx context.Context, file string) error {
	v, err := r.FrameworkVersion(ctx)
	if err != nil {
		return err
	}
	c, err := semver.NewConstraint(legacyPassport)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return nil
	}

	if err := r.ReplaceInFile(file, `\Passport;`,
		"\\Passport;\nuse Symfony\\Component\\Security\\Http\\Authenticator\\Passport\\PassportInterface;", false); err != nil {
		return err
	}
	return r.ReplaceInFile(file, ": Passport", ": PassportInterface", false)
}
