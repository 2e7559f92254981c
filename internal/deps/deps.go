// Package deps finds which declared packages a project is missing by running
// a small resolver inside the project itself, against its own autoloader.
package deps

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/process"
)

const (
	// RequestFile and DriverFile are written into the project root and
	// removed after the run.
	RequestFile = "dep_request.json"
	DriverFile  = "dep_runner.php"
)

//go:embed dep_runner.php
var driverSource []byte

// Requirement declares that Class must be loadable, provided by Package.
type Requirement struct {
	Class   string `json:"class" yaml:"class"`
	Package string `json:"package" yaml:"package"`
	Dev     bool   `json:"dev" yaml:"dev,omitempty"`
}

type request struct {
	Requirements []Requirement `json:"requirements"`
}

// Executor is the slice of process.Runner the resolver needs.
type Executor interface {
	Run(ctx context.Context, spec process.Spec) (*process.Result, error)
}

// Resolver runs the driver with the configured PHP binary.
type Resolver struct {
	Exec Executor
	PHP  string
}

// NewResolver returns a resolver that runs "php".
func NewResolver(exec Executor) *Resolver {
	return &Resolver{Exec: exec, PHP: "php"}
}

// Missing returns the packages of requirements not satisfied in projectDir,
// in declaration order. Dev packages come after regular ones.
func (r *Resolver) Missing(ctx context.Context, projectDir string, requirements []Requirement) ([]string, error) {
	reqPath := filepath.Join(projectDir, RequestFile)
	driverPath := filepath.Join(projectDir, DriverFile)

	data, err := json.Marshal(request{Requirements: ordered(requirements)})
	if err != nil {
		return nil, fmt.Errorf("encode dependency request: %w", err)
	}
	if err := os.WriteFile(reqPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", RequestFile, err)
	}
	defer os.Remove(reqPath)

	if err := os.WriteFile(driverPath, driverSource, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", DriverFile, err)
	}
	defer os.Remove(driverPath)

	php := r.PHP
	if php == "" {
		php = "php"
	}
	res, err := r.Exec.Run(ctx, process.Spec{
		Command: php + " " + DriverFile,
		Dir:     projectDir,
	})
	if err != nil {
		return nil, err
	}

	return Decode(res.Stdout)
}

// Decode parses the driver's response, a JSON array of package identifiers.
func Decode(output string) ([]string, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" || trimmed == "null" {
		return nil, &herrors.DependencyResolutionError{Output: output}
	}

	var pkgs []string
	if err := json.Unmarshal([]byte(trimmed), &pkgs); err != nil {
		return nil, &herrors.DependencyResolutionError{Output: output, Cause: err}
	}
	return pkgs, nil
}

// Merge appends extra identifiers to resolved, dropping duplicates.
func Merge(resolved, extra []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(resolved)+len(extra))
	for _, list := range [][]string{resolved, extra} {
		for _, p := range list {
			p = strings.TrimSpace(p)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func ordered(requirements []Requirement) []Requirement {
	out := make([]Requirement, 0, len(requirements))
	for _, dev := range []bool{false, true} {
		for _, r := range requirements {
			if r.Dev == dev {
				out = append(out, r)
			}
		}
	}
	return out
}
