package details

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/silver2dream/makerkit/internal/replace"
)

func TestBuilder_Build(t *testing.T) {
	b := New("make:api").
		Named("api_basic").
		WithArguments("Book").
		AddInputs("title", "string", "").
		AddReplacement("config/services.yaml", "App\\", "Custom\\").
		RequireDev(`Symfony\Bundle\TwigBundle\TwigBundle`, "twig").
		SetGuardAuthenticator("main", `App\Security\Auth`).
		SetTimeout(30 * time.Second)

	d := b.Build()

	if d.Maker != "make:api" || d.Name != "api_basic" {
		t.Errorf("Maker = %q, Name = %q", d.Maker, d.Name)
	}
	if len(d.Inputs) != 3 || d.Inputs[2] != "" {
		t.Errorf("Inputs = %q", d.Inputs)
	}
	if d.Replacements[0].Origin != "api_basic" {
		t.Errorf("Origin = %q, want test name", d.Replacements[0].Origin)
	}
	if d.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s", d.Timeout)
	}

	// Verify the built value is detached from the builder
	b.AddInputs("more").SetGuardAuthenticator("api", "x")
	if len(d.Inputs) != 3 {
		t.Errorf("built Inputs changed to %q", d.Inputs)
	}
	if _, ok := d.GuardAuthenticators["api"]; ok {
		t.Error("built GuardAuthenticators changed")
	}
}

func TestNamespace(t *testing.T) {
	if got := New("make:api").Build().Namespace(); got != "App" {
		t.Errorf("Namespace() = %q, want App", got)
	}
	if got := New("make:api").ChangeRootNamespace("Custom").Build().Namespace(); got != "Custom" {
		t.Errorf("Namespace() = %q, want Custom", got)
	}
}

func TestArgumentsString(t *testing.T) {
	d := New("make:api").WithArguments("Book", "--force").Build()
	if d.ArgumentsString() != "Book --force" {
		t.Errorf("ArgumentsString() = %q", d.ArgumentsString())
	}
}

func TestUniqueCacheDirectoryName(t *testing.T) {
	a := New("make:api").
		Require(`Doctrine\ORM\EntityManager`, "orm").
		Require(`Twig\Environment`, "twig").
		AddExtraDependencies("a/b", "c/d").
		Build()
	b := New("make:crud").
		Named("other").
		Require(`Twig\Environment`, "twig").
		Require(`Doctrine\ORM\EntityManager`, "orm").
		AddExtraDependencies("c/d", "a/b").
		AddInputs("x").
		Build()

	name := a.UniqueCacheDirectoryName()
	if !strings.HasPrefix(name, "maker_") || len(name) != len("maker_")+10 {
		t.Errorf("UniqueCacheDirectoryName() = %q", name)
	}
	// Same namespace and package set share a directory
	if name != b.UniqueCacheDirectoryName() {
		t.Errorf("order-insensitive names differ: %q vs %q", name, b.UniqueCacheDirectoryName())
	}

	c := New("make:api").Require(`Doctrine\ORM\EntityManager`, "orm").ChangeRootNamespace("Custom").Build()
	d := New("make:api").Require(`Doctrine\ORM\EntityManager`, "orm").Build()
	if c.UniqueCacheDirectoryName() == d.UniqueCacheDirectoryName() {
		t.Error("namespace should change the cache key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		d      TestDetails
		fields []string
	}{
		{"valid", New("make:api").Build(), nil},
		{"missing maker", TestDetails{}, []string{"maker"}},
		{"bad namespace", New("make:api").ChangeRootNamespace("A\\B").Build(), []string{"root_namespace"}},
		{
			"bad replacement",
			TestDetails{Maker: "make:api", PostMakeReplacements: []replace.Replacement{{File: ""}}},
			[]string{"post_make_replacements[0].file", "post_make_replacements[0].find"},
		},
		{"negative timeout", New("make:api").SetTimeout(-time.Second).Build(), []string{"timeout"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.d.Validate()
			if len(errs) != len(tt.fields) {
				t.Fatalf("Validate() = %v, want fields %v", errs, tt.fields)
			}
			for i, f := range tt.fields {
				if errs[i].Field != f {
					t.Errorf("errs[%d].Field = %q, want %q", i, errs[i].Field, f)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "api_custom_ns.yaml")
	content := `maker: make:api
arguments: [Book]
inputs:
  - title
  - ""
root_namespace: Custom
fixtures: fixtures/api
replacements:
  - file: config/packages/security.yaml
    find: "anonymous: true"
    replace: "anonymous: lazy"
    allow_not_found: true
requirements:
  - class: Doctrine\ORM\EntityManager
    package: orm
guard_authenticators:
  main: App\Security\Auth
timeout: 20s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if d.Name != "api_custom_ns" {
		t.Errorf("Name = %q, want file stem", d.Name)
	}
	if d.FixtureFilesPath != filepath.Join(dir, "fixtures/api") {
		t.Errorf("FixtureFilesPath = %q", d.FixtureFilesPath)
	}
	if len(d.Inputs) != 2 || d.Inputs[1] != "" {
		t.Errorf("Inputs = %q", d.Inputs)
	}
	if !d.Replacements[0].AllowNotFound {
		t.Error("AllowNotFound should be true")
	}
	if d.Requirements[0].Class != `Doctrine\ORM\EntityManager` {
		t.Errorf("Requirements = %+v", d.Requirements)
	}
	if d.GuardAuthenticators["main"] != `App\Security\Auth` {
		t.Errorf("GuardAuthenticators = %v", d.GuardAuthenticators)
	}
	if d.Timeout != 20*time.Second {
		t.Errorf("Timeout = %s", d.Timeout)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}
