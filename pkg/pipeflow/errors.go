package pipeflow

import (
	"fmt"
	"log/slog"
)

// ConfigError reports a problem found while planning a pipeline: a cycle,
// an unsatisfiable node, a duplicate output, or a collision between an
// output and a catalog input or parameter name. ConfigErrors are always
// fatal and always raised before any item is dispatched.
type ConfigError struct {
	Pipeline string
	msg      string
	attrs    []slog.Attr
}

func newConfigError(pipeline, msg string, attrs ...slog.Attr) *ConfigError {
	return &ConfigError{Pipeline: pipeline, msg: msg, attrs: attrs}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pipeline %q: %s", e.Pipeline, e.msg)
}

// LogAttrs returns structured fields suitable for slog.
func (e *ConfigError) LogAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(e.attrs)+1)
	attrs = append(attrs, slog.String("pipeline", e.Pipeline))
	attrs = append(attrs, e.attrs...)
	return attrs
}

// NotFoundError is returned by the node, pipeline and system registry
// lookups when a name is unknown (dataset handlers return
// *catalog.NotFoundError instead). Suggestion is populated with the closest
// known name when one can be computed, to give "did you mean" style
// feedback.
type NotFoundError struct {
	Kind       string // "node", "pipeline", "system"
	Key        string
	Suggestion string
}

func (e *NotFoundError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s %q not found (did you mean %q?)", e.Kind, e.Key, e.Suggestion)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

// ArityMismatchError is raised when a node's return value, once normalized,
// still does not match its declared output arity (and that arity is > 1).
type ArityMismatchError struct {
	Node     string
	Declared int
	Got      int
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("node %q produced %d outputs, declared %d", e.Node, e.Got, e.Declared)
}

// Error is the generic per-item failure kind: a node's error return or
// recovered panic, or an I/O failure from a handler's Get/Save. It carries the
// master key and node name it occurred under so the dispatcher and any
// log sink can attribute it precisely. Whether it aborts the pipeline is
// governed by Pipeline.Config.ErrorTolerant, never by the error itself.
type Error struct {
	Pipeline  string
	Node      string
	MasterKey any
	cause     error
	attrs     []slog.Attr
}

func wrapItemError(pipeline, node string, masterKey any, cause error) *Error {
	return &Error{Pipeline: pipeline, Node: node, MasterKey: masterKey, cause: cause}
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline %q node %q key %v: %v", e.Pipeline, e.Node, e.MasterKey, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Tag attaches a structured logging attribute and returns the error for
// fluent chaining.
func (e *Error) Tag(attr slog.Attr) *Error {
	e.attrs = append(e.attrs, attr)
	return e
}

// LogAttrs returns all attributes including pipeline/node/master-key
// context, suitable for passing to slog.
func (e *Error) LogAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(e.attrs)+4)
	attrs = append(attrs,
		slog.String("pipeline", e.Pipeline),
		slog.String("node", e.Node),
		slog.Any("master_key", e.MasterKey),
		slog.Any("error", e.cause),
	)
	return append(attrs, e.attrs...)
}
