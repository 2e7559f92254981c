package details

import (
	"time"

	"github.com/silver2dream/makerkit/internal/deps"
	"github.com/silver2dream/makerkit/internal/replace"
)

// Builder assembles a TestDetails fluently.
type Builder struct {
	d TestDetails
}

// New starts a test case for the given generator command.
func New(maker string) *Builder {
	return &Builder{d: TestDetails{Maker: maker, Name: maker}}
}

func (b *Builder) Named(name string) *Builder {
	b.d.Name = name
	return b
}

func (b *Builder) WithArguments(args ...string) *Builder {
	b.d.Arguments = append(b.d.Arguments, args...)
	return b
}

func (b *Builder) AddInputs(inputs ...string) *Builder {
	b.d.Inputs = append(b.d.Inputs, inputs...)
	return b
}

// AddReplacement queues a pre-run edit.
func (b *Builder) AddReplacement(file, find, replaceWith string) *Builder {
	b.d.Replacements = append(b.d.Replacements, replace.Replacement{File: file, Find: find, Replace: replaceWith, Origin: b.d.Name})
	return b
}

// AddOptionalReplacement queues a pre-run edit that may find nothing.
func (b *Builder) AddOptionalReplacement(file, find, replaceWith string) *Builder {
	b.d.Replacements = append(b.d.Replacements, replace.Replacement{File: file, Find: find, Replace: replaceWith, Origin: b.d.Name, AllowNotFound: true})
	return b
}

// AddPostMakeReplacement queues an edit applied after the generator ran.
func (b *Builder) AddPostMakeReplacement(file, find, replaceWith string) *Builder {
	b.d.PostMakeReplacements = append(b.d.PostMakeReplacements, replace.Replacement{File: file, Find: find, Replace: replaceWith, Origin: b.d.Name})
	return b
}

func (b *Builder) SetFixtureFilesPath(path string) *Builder {
	b.d.FixtureFilesPath = path
	return b
}

func (b *Builder) DeleteFile(files ...string) *Builder {
	b.d.FilesToDelete = append(b.d.FilesToDelete, files...)
	return b
}

func (b *Builder) AddExtraDependencies(pkgs ...string) *Builder {
	b.d.ExtraDependencies = append(b.d.ExtraDependencies, pkgs...)
	return b
}

// Require declares that class must be loadable, installing pkg otherwise.
func (b *Builder) Require(class, pkg string) *Builder {
	b.d.Requirements = append(b.d.Requirements, deps.Requirement{Class: class, Package: pkg})
	return b
}

// RequireDev is Require for a dev-only package.
func (b *Builder) RequireDev(class, pkg string) *Builder {
	b.d.Requirements = append(b.d.Requirements, deps.Requirement{Class: class, Package: pkg, Dev: true})
	return b
}

func (b *Builder) ChangeRootNamespace(ns string) *Builder {
	b.d.RootNamespace = ns
	return b
}

func (b *Builder) SetAllowedToFail(allowed bool) *Builder {
	b.d.AllowedToFail = allowed
	return b
}

func (b *Builder) AddPreMakeCommand(cmd string) *Builder {
	b.d.PreMakeCommands = append(b.d.PreMakeCommands, cmd)
	return b
}

func (b *Builder) AddPostMakeCommand(cmd string) *Builder {
	b.d.PostMakeCommands = append(b.d.PostMakeCommands, cmd)
	return b
}

// SetGuardAuthenticator binds authenticator id to the named firewall.
func (b *Builder) SetGuardAuthenticator(firewall, id string) *Builder {
	if b.d.GuardAuthenticators == nil {
		b.d.GuardAuthenticators = map[string]string{}
	}
	b.d.GuardAuthenticators[firewall] = id
	return b
}

// UsePTY runs the generator attached to a pseudo-terminal.
func (b *Builder) UsePTY() *Builder {
	b.d.UsePTY = true
	return b
}

// Build returns a frozen copy. The builder may keep being used.
func (b *Builder) Build() TestDetails {
	return b.d.Clone()
}

// SetTimeout overrides the generator timeout.
func (b *Builder) SetTimeout(d time.Duration) *Builder {
	b.d.Timeout = d
	return b
}
