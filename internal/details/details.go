// Package details describes a single generator test case.
package details

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/silver2dream/makerkit/internal/deps"
	"github.com/silver2dream/makerkit/internal/replace"
)

// DefaultRootNamespace is the skeleton's namespace.
const DefaultRootNamespace = "App"

// TestDetails is one test case. Values returned by Builder.Build share no
// slices or maps with the builder.
type TestDetails struct {
	Name                 string                `yaml:"name"`
	Maker                string                `yaml:"maker"`
	Arguments            []string              `yaml:"arguments,omitempty"`
	Inputs               []string              `yaml:"inputs,omitempty"`
	Replacements         []replace.Replacement `yaml:"replacements,omitempty"`
	PostMakeReplacements []replace.Replacement `yaml:"post_make_replacements,omitempty"`
	FixtureFilesPath     string                `yaml:"fixtures,omitempty"`
	FilesToDelete        []string              `yaml:"delete,omitempty"`
	ExtraDependencies    []string              `yaml:"extra_dependencies,omitempty"`
	Requirements         []deps.Requirement    `yaml:"requirements,omitempty"`
	RootNamespace        string                `yaml:"root_namespace,omitempty"`
	AllowedToFail        bool                  `yaml:"allowed_to_fail,omitempty"`
	PreMakeCommands      []string              `yaml:"pre_make_commands,omitempty"`
	PostMakeCommands     []string              `yaml:"post_make_commands,omitempty"`
	GuardAuthenticators  map[string]string     `yaml:"guard_authenticators,omitempty"`
	UsePTY               bool                  `yaml:"use_pty,omitempty"`
	Timeout              time.Duration         `yaml:"timeout,omitempty"`
}

// Namespace returns the root namespace, defaulting to App.
func (d TestDetails) Namespace() string {
	if d.RootNamespace == "" {
		return DefaultRootNamespace
	}
	return d.RootNamespace
}

// ArgumentsString joins the arguments for the command line.
func (d TestDetails) ArgumentsString() string {
	return strings.Join(d.Arguments, " ")
}

// UniqueCacheDirectoryName derives the working directory name from the
// namespace and the package set. Test cases installing the same packages
// under the same namespace share a directory.
func (d TestDetails) UniqueCacheDirectoryName() string {
	reqs := make([]string, 0, len(d.Requirements))
	for _, r := range d.Requirements {
		reqs = append(reqs, fmt.Sprintf("%s|%s|%t", r.Class, r.Package, r.Dev))
	}
	sort.Strings(reqs)

	extra := append([]string(nil), d.ExtraDependencies...)
	sort.Strings(extra)

	h := sha1.New()
	fmt.Fprintf(h, "%s\n%s\n%s", d.Namespace(), strings.Join(reqs, "\n"), strings.Join(extra, "\n"))
	return "maker_" + hex.EncodeToString(h.Sum(nil))[:10]
}

// Clone returns a deep copy.
func (d TestDetails) Clone() TestDetails {
	c := d
	c.Arguments = append([]string(nil), d.Arguments...)
	c.Inputs = append([]string(nil), d.Inputs...)
	c.Replacements = append([]replace.Replacement(nil), d.Replacements...)
	c.PostMakeReplacements = append([]replace.Replacement(nil), d.PostMakeReplacements...)
	c.FilesToDelete = append([]string(nil), d.FilesToDelete...)
	c.ExtraDependencies = append([]string(nil), d.ExtraDependencies...)
	c.Requirements = append([]deps.Requirement(nil), d.Requirements...)
	c.PreMakeCommands = append([]string(nil), d.PreMakeCommands...)
	c.PostMakeCommands = append([]string(nil), d.PostMakeCommands...)
	if d.GuardAuthenticators != nil {
		c.GuardAuthenticators = make(map[string]string, len(d.GuardAuthenticators))
		for k, v := range d.GuardAuthenticators {
			c.GuardAuthenticators[k] = v
		}
	}
	return c
}

// ValidationError represents a test case validation error
type ValidationError struct {
	Field    string
	Message  string
	Expected string
}

func (e ValidationError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s: %s (expected: %s)", e.Field, e.Message, e.Expected)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks required fields and the shape of nested entries
func (d TestDetails) Validate() []ValidationError {
	var errs []ValidationError

	if d.Maker == "" {
		errs = append(errs, ValidationError{
			Field:    "maker",
			Message:  "required field is missing",
			Expected: "a console command name such as make:api",
		})
	}

	if d.RootNamespace != "" && strings.ContainsAny(d.RootNamespace, " /\\") {
		errs = append(errs, ValidationError{
			Field:    "root_namespace",
			Message:  fmt.Sprintf("invalid value: %s", d.RootNamespace),
			Expected: "a single namespace segment",
		})
	}

	for name, list := range map[string][]replace.Replacement{
		"replacements":           d.Replacements,
		"post_make_replacements": d.PostMakeReplacements,
	} {
		for i, r := range list {
			if r.File == "" {
				errs = append(errs, ValidationError{Field: fmt.Sprintf("%s[%d].file", name, i), Message: "required field is missing"})
			}
			if r.Find == "" {
				errs = append(errs, ValidationError{Field: fmt.Sprintf("%s[%d].find", name, i), Message: "required field is missing"})
			}
		}
	}

	for i, r := range d.Requirements {
		if r.Class == "" || r.Package == "" {
			errs = append(errs, ValidationError{
				Field:    fmt.Sprintf("requirements[%d]", i),
				Message:  "class and package are required",
				Expected: "{class, package, dev}",
			})
		}
	}

	if d.Timeout < 0 {
		errs = append(errs, ValidationError{Field: "timeout", Message: "must not be negative"})
	}

	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

// Load reads a test case from a YAML file. A relative fixture path is
// resolved against the file's directory.
func Load(path string) (TestDetails, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TestDetails{}, fmt.Errorf("failed to read test details: %w", err)
	}

	var d TestDetails
	if err := yaml.Unmarshal(data, &d); err != nil {
		return TestDetails{}, fmt.Errorf("failed to parse test details: %w", err)
	}

	if d.FixtureFilesPath != "" && !filepath.IsAbs(d.FixtureFilesPath) {
		d.FixtureFilesPath = filepath.Join(filepath.Dir(path), d.FixtureFilesPath)
	}
	if d.Name == "" {
		d.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return d, nil
}
