// Package journal records harness operations per environment as JSONL.
package journal

import (
	"time"
)

// Component is the source of an event.
const (
	ComponentSkeleton    = "skeleton"
	ComponentEnvironment = "environment"
	ComponentMaker       = "maker"
	ComponentPostMake    = "postmake"
	ComponentRunner      = "runner"
)

// Level is the severity of an event.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Event types
const (
	TypeSkeletonReady = "skeleton_ready"
	TypeSkeletonBuilt = "skeleton_built"

	TypePrepareStart      = "prepare_start"
	TypeMirrored          = "mirrored"
	TypeDepsInstalled     = "deps_installed"
	TypeNamespaceRewrite  = "namespace_rewrite"
	TypeFixturesCopied    = "fixtures_copied"
	TypeReplacements      = "replacements"
	TypeFilesDeleted      = "files_deleted"
	TypePrepareEnd        = "prepare_end"
	TypeWorkingDirRemoved = "working_dir_removed"

	TypeCommand    = "command"
	TypeMakerStart = "maker_start"
	TypeMakerEnd   = "maker_end"

	TypeFirewalls = "firewalls"
	TypeFinalized = "finalized"
)

// Event is one journal line.
type Event struct {
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"ts"`

	Component string `json:"component"`
	Type      string `json:"type"`
	Level     string `json:"level"`

	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// EventOption configures an Event.
type EventOption func(*Event)

// WithData attaches arbitrary data.
func WithData(data any) EventOption {
	return func(e *Event) {
		e.Data = data
	}
}

// WithError records err's message and raises the level to error.
func WithError(err error) EventOption {
	return func(e *Event) {
		if err != nil {
			e.Error = err.Error()
			e.Level = LevelError
		}
	}
}

// NewEvent creates an Event stamped with the current UTC time.
func NewEvent(seq int, component, eventType, level string, opts ...EventOption) *Event {
	e := &Event{
		Seq:       seq,
		Timestamp: time.Now().UTC(),
		Component: component,
		Type:      eventType,
		Level:     level,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
