package environment

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/silver2dream/makerkit/internal/config"
	"github.com/silver2dream/makerkit/internal/details"
	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/process"
)

// skeletonFiles is the subset of a fresh project the harness edits
var skeletonFiles = map[string]string{
	"composer.json":           "{\n    \"autoload\": {\n        \"psr-4\": {\n            \"App\\\\\": \"src/\"\n        }\n    }\n}\n",
	"src/Kernel.php":          "<?php\n\nnamespace App;\n\nclass Kernel {}\n",
	"bin/console":             "#!/usr/bin/env php\n<?php\n\nuse App\\Kernel;\n",
	"public/index.php":        "<?php\n\nuse App\\Kernel;\n",
	"config/services.yaml":    "services:\n    App\\:\n        resource: '../src/*'\n    App\\Controller\\:\n        resource: '../src/Controller'\n",
	"phpunit.xml.dist":        "<phpunit>\n    <env name=\"KERNEL_CLASS\" value=\"App\\Kernel\" />\n</phpunit>\n",
	"var/cache/dev/x.php":     "<?php\n",
	"src/Controller/.gitkeep": "",
}

type fakeExec struct {
	mu       sync.Mutex
	specs    []process.Spec
	depsOut  string
	failOn   string
	makerOut string
}

func (f *fakeExec) Run(ctx context.Context, spec process.Spec) (*process.Result, error) {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()

	if f.failOn != "" && strings.Contains(spec.Command, f.failOn) {
		return nil, &herrors.ProcessFailedError{Command: spec.Command, Dir: spec.Dir, ExitCode: 1}
	}
	res := &process.Result{Command: spec.Command, Dir: spec.Dir, Success: true}
	switch {
	case strings.Contains(spec.Command, "dep_runner.php"):
		res.Stdout = f.depsOut
	case strings.Contains(spec.Command, "bin/console make:"):
		res.Stdout = f.makerOut
	case strings.Contains(spec.Command, "--version"):
		res.Stdout = "Symfony 5.3.16 (env: dev, debug: true)\n"
	}
	return res, nil
}

func (f *fakeExec) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.specs))
	for i, s := range f.specs {
		out[i] = s.Command
	}
	return out
}

func (f *fakeExec) find(substr string) (process.Spec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.specs {
		if strings.Contains(s.Command, substr) {
			return s, true
		}
	}
	return process.Spec{}, false
}

func setup(t *testing.T) (*config.Config, *fakeExec) {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	for rel, content := range skeletonFiles {
		p := filepath.Join(cfg.SkeletonDir(), filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return cfg, &fakeExec{depsOut: "[]"}
}

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestPrepare_FreshDirectory(t *testing.T) {
	cfg, fe := setup(t)
	fe.depsOut = `["symfony/orm-pack"]`

	fixtures := filepath.Join(t.TempDir(), "fixtures")
	os.MkdirAll(filepath.Join(fixtures, "src", "Entity"), 0o755)
	os.WriteFile(filepath.Join(fixtures, "src", "Entity", "User.php"), []byte("<?php // user\n"), 0o644)

	d := details.New("make:api").
		Require(`Doctrine\ORM\EntityManager`, "symfony/orm-pack").
		AddExtraDependencies("symfony/orm-pack", "symfony/validator").
		SetFixtureFilesPath(fixtures).
		AddReplacement("src/Entity/User.php", "// user", "// account").
		DeleteFile("public/index.php", "does/not/exist").
		Build()

	env, err := NewManager(cfg, fe).Prepare(context.Background(), d)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer env.Close()

	if env.Reused {
		t.Error("Reused = true for a fresh directory")
	}
	if env.Path() != filepath.Join(cfg.CacheDir, d.UniqueCacheDirectoryName()) {
		t.Errorf("Path() = %q", env.Path())
	}
	if got := readFile(t, env.Dir, ".gitignore"); got != "var/cache/\nvendor/\n" {
		t.Errorf(".gitignore = %q", got)
	}
	if got := readFile(t, env.Dir, "src/Entity/User.php"); got != "<?php // account\n" {
		t.Errorf("User.php = %q", got)
	}
	if env.FileExists("public/index.php") {
		t.Error("public/index.php should have been deleted")
	}
	if !env.FileExists("src/Kernel.php") {
		t.Error("skeleton files should be mirrored")
	}

	cmds := fe.commands()
	var requireLine string
	for _, c := range cmds {
		if strings.Contains(c, " require ") {
			requireLine = c
		}
	}
	if !strings.Contains(requireLine, "symfony/orm-pack") || !strings.Contains(requireLine, "symfony/validator") {
		t.Errorf("require command = %q", requireLine)
	}
	if strings.Count(requireLine, "symfony/orm-pack") != 1 {
		t.Errorf("require command should dedupe packages: %q", requireLine)
	}
	if last := cmds[len(cmds)-1]; last != "composer dump-autoload" {
		t.Errorf("last command = %q, want composer dump-autoload", last)
	}

	if _, err := os.Stat(filepath.Join(env.Dir, "dep_request.json")); !os.IsNotExist(err) {
		t.Error("resolver artifacts should be removed")
	}
}

func TestPrepare_NamespaceRewrite(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		composer  string
		kernel    string
	}{
		{"custom", "Custom", `"Custom\\": "src/"`, "namespace Custom;"},
		{"default", "", `"App\\": "src/"`, "namespace App;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, fe := setup(t)
			b := details.New("make:api")
			if tt.namespace != "" {
				b.ChangeRootNamespace(tt.namespace)
			}

			env, err := NewManager(cfg, fe).Prepare(context.Background(), b.Build())
			if err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}
			defer env.Close()

			if got := readFile(t, env.Dir, "composer.json"); !strings.Contains(got, tt.composer) {
				t.Errorf("composer.json =\n%s", got)
			}
			if got := readFile(t, env.Dir, "src/Kernel.php"); !strings.Contains(got, tt.kernel) {
				t.Errorf("Kernel.php =\n%s", got)
			}
			if tt.namespace != "" {
				services := readFile(t, env.Dir, "config/services.yaml")
				if strings.Contains(services, `App\`) {
					t.Errorf("services.yaml still references App:\n%s", services)
				}
			}
		})
	}
}

func TestNamespaceReplacements(t *testing.T) {
	dir := t.TempDir()
	if reps := NamespaceReplacements(dir, "App"); reps != nil {
		t.Errorf("App should need no replacements, got %d", len(reps))
	}

	without := len(NamespaceReplacements(dir, "Custom"))
	os.MkdirAll(filepath.Join(dir, "config", "packages"), 0o755)
	os.WriteFile(filepath.Join(dir, "config", "packages", "doctrine.yaml"), []byte("App: ~\n"), 0o644)
	if with := len(NamespaceReplacements(dir, "Custom")); with != without+1 {
		t.Errorf("doctrine.yaml replacement not added: %d vs %d", with, without)
	}
}

func TestPrepare_FailureRemovesWorkingDir(t *testing.T) {
	cfg, fe := setup(t)
	fe.depsOut = `["symfony/orm-pack"]`
	fe.failOn = " require "

	d := details.New("make:api").Require(`Doctrine\ORM\EntityManager`, "symfony/orm-pack").Build()
	m := NewManager(cfg, fe)

	_, err := m.Prepare(context.Background(), d)
	if !herrors.IsProcessFailed(err) {
		t.Fatalf("Prepare() error = %v, want ProcessFailedError", err)
	}
	if _, err := os.Stat(m.DirFor(d)); !os.IsNotExist(err) {
		t.Error("working directory should be removed after a failed setup")
	}
}

func TestPrepare_ResolverGarbage(t *testing.T) {
	cfg, fe := setup(t)
	fe.depsOut = "PHP Fatal error: boom"

	d := details.New("make:api").Require(`Foo\Bar`, "foo/bar").Build()
	_, err := NewManager(cfg, fe).Prepare(context.Background(), d)
	if herrors.GetExitCode(err) != herrors.ExitSetupError {
		t.Fatalf("Prepare() error = %v, want DependencyResolutionError", err)
	}
}

func TestPrepare_Idempotent(t *testing.T) {
	cfg, fe := setup(t)
	fixtures := filepath.Join(t.TempDir(), "fixtures")
	os.MkdirAll(filepath.Join(fixtures, "src"), 0o755)
	os.WriteFile(filepath.Join(fixtures, "src", "Fixture.php"), []byte("<?php\n"), 0o644)

	d := details.New("make:api").
		SetFixtureFilesPath(fixtures).
		AddReplacement("config/services.yaml", "resource: '../src/*'", "resource: '../src/*'\n        exclude: '../src/Kernel.php'").
		AddExtraDependencies("symfony/orm-pack").
		Build()
	m := NewManager(cfg, fe)

	env, err := m.Prepare(context.Background(), d)
	if err != nil {
		t.Fatalf("first Prepare() error = %v", err)
	}
	env.Close()
	if _, ok := fe.find("composer require"); !ok {
		t.Fatalf("first Prepare() did not install dependencies: %v", fe.commands())
	}

	// A file added to the skeleton only shows up if it is mirrored again
	os.WriteFile(filepath.Join(cfg.SkeletonDir(), "added-later.txt"), []byte("x\n"), 0o644)
	fe.mu.Lock()
	fe.specs = nil
	fe.mu.Unlock()

	fixture := filepath.Join(env.Dir, "src", "Fixture.php")
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	os.Chtimes(fixture, old, old)
	first := readFile(t, env.Dir, "config/services.yaml")

	env2, err := m.Prepare(context.Background(), d)
	if err != nil {
		t.Fatalf("second Prepare() error = %v", err)
	}
	defer env2.Close()

	if !env2.Reused {
		t.Error("Reused = false on second Prepare")
	}
	for _, c := range fe.commands() {
		if strings.Contains(c, " require ") || strings.Contains(c, "dep_runner.php") {
			t.Errorf("second Prepare() ran %q", c)
		}
	}
	if _, err := os.Stat(filepath.Join(env2.Dir, "added-later.txt")); !os.IsNotExist(err) {
		t.Error("second Prepare() mirrored the skeleton again")
	}
	if got := readFile(t, env2.Dir, "config/services.yaml"); got != first {
		t.Errorf("services.yaml changed on reuse:\n%s", got)
	}
	info, _ := os.Stat(fixture)
	if !info.ModTime().Equal(old) {
		t.Errorf("unchanged fixture was rewritten: mtime %v, want %v", info.ModTime(), old)
	}
}

func TestRunMaker(t *testing.T) {
	cfg, fe := setup(t)
	fe.makerOut = " created: src/Controller/UserController.php\n updated: config/routes.yaml\n\n Success!\n"

	d := details.New("make:api").
		WithArguments("User").
		AddInputs("yes", "no").
		AddPreMakeCommand("php bin/console about").
		AddPostMakeCommand("php bin/console lint:container").
		Build()

	env, err := NewManager(cfg, fe).Prepare(context.Background(), d)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer env.Close()

	res, err := env.RunMaker(context.Background())
	if err != nil {
		t.Fatalf("RunMaker() error = %v", err)
	}
	if res != env.MakerResult() {
		t.Error("MakerResult() should return the last run")
	}

	spec, ok := fe.find("make:api")
	if !ok {
		t.Fatal("maker command not run")
	}
	if spec.Command != "php bin/console make:api User --no-ansi" {
		t.Errorf("Command = %q", spec.Command)
	}
	if spec.Env["SHELL_INTERACTIVE"] != "1" {
		t.Errorf("Env = %v, want SHELL_INTERACTIVE=1", spec.Env)
	}
	if spec.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s default", spec.Timeout)
	}
	if len(spec.Inputs) != 2 || spec.Inputs[0] != "yes" {
		t.Errorf("Inputs = %q", spec.Inputs)
	}

	cmds := fe.commands()
	order := []string{"php bin/console about", "make:api", "lint:container"}
	idx := 0
	for _, c := range cmds {
		if idx < len(order) && strings.Contains(c, order[idx]) {
			idx++
		}
	}
	if idx != len(order) {
		t.Errorf("commands out of order: %q", cmds)
	}

	if env.FileExists("var/cache") {
		t.Error("var/cache should be removed before the run")
	}

	files := env.GeneratedFiles()
	if len(files) != 2 || files[0] != "src/Controller/UserController.php" || files[1] != "config/routes.yaml" {
		t.Errorf("GeneratedFiles() = %q", files)
	}
}

func TestRunMaker_PreMakeFailure(t *testing.T) {
	cfg, fe := setup(t)
	d := details.New("make:api").AddPreMakeCommand("broken-pre").Build()

	env, err := NewManager(cfg, fe).Prepare(context.Background(), d)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer env.Close()

	fe.failOn = "broken-pre"
	if _, err := env.RunMaker(context.Background()); !herrors.IsProcessFailed(err) {
		t.Fatalf("RunMaker() error = %v, want ProcessFailedError", err)
	}
	if _, ok := fe.find("make:api"); ok {
		t.Error("maker ran after a failed pre-make command")
	}
}

func TestParseGeneratedFiles(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []string
	}{
		{"none", "nothing here\n", nil},
		{"mixed case", "CREATED: a.php\nUpdated: b.yaml\n", []string{"a.php", "b.yaml"}},
		{"trailing line without newline", "created: a.php", nil},
		{"trims", "created:   src/Foo.php  \n", []string{"src/Foo.php"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseGeneratedFiles(tt.output)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("ParseGeneratedFiles() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMakerCommand(t *testing.T) {
	if got := MakerCommand("php", details.New("make:entity").Build()); got != "php bin/console make:entity --no-ansi" {
		t.Errorf("MakerCommand() = %q", got)
	}
}

func TestHelpers(t *testing.T) {
	cfg, fe := setup(t)
	env, err := NewManager(cfg, fe).Prepare(context.Background(), details.New("make:api").Build())
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer env.Close()
	ctx := context.Background()

	v, err := env.FrameworkVersion(ctx)
	if err != nil || v.String() != "5.3.16" {
		t.Errorf("FrameworkVersion() = %v, %v", v, err)
	}

	res, err := env.RunInternalTests(ctx)
	if err != nil || res != nil {
		t.Errorf("RunInternalTests() without tests = %v, %v; want nil, nil", res, err)
	}

	if _, err := env.RunLinter(ctx, "src/Kernel.php"); err != nil {
		t.Fatalf("RunLinter() error = %v", err)
	}
	spec, _ := fe.find("php-cs-fixer")
	if spec.Dir != cfg.PluginRoot || !spec.AllowFailure {
		t.Errorf("linter spec = %+v", spec)
	}

	is := env.CreateInteractiveCommand("make:user", []string{"User"}, "--no-ansi")
	if is.Command != "php bin/console make:user --no-ansi" || is.Dir != env.Dir || len(is.Inputs) != 1 {
		t.Errorf("CreateInteractiveCommand() = %+v", is)
	}
}

func TestPHPString(t *testing.T) {
	if got := phpString(`App\Entity\O'Neil`); got != `'App\\Entity\\O\'Neil'` {
		t.Errorf("phpString() = %s", got)
	}
}
