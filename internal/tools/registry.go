// Package tools defines the tools the assistant may call. Server tools carry
// an Executor and run in-process; client tools are only declared to the model
// and are executed by the caller.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownTool is reported when the model asks for a tool that is not registered
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool is returned when two declarations share a name
	ErrDuplicateTool = errors.New("duplicate tool name")

	// ErrInvalidInput is returned by typed executors when input does not decode
	ErrInvalidInput = errors.New("invalid tool input")
)

// Schema is a JSON-schema object describing a tool's input.
type Schema map[string]any

// Executor runs a server tool against its JSON input.
type Executor interface {
	Execute(ctx context.Context, input json.RawMessage) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, input json.RawMessage) (any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	return f(ctx, input)
}

// Typed wraps fn so that it receives its input decoded into T.
func Typed[T any](fn func(ctx context.Context, in T) (any, error)) Executor {
	return ExecutorFunc(func(ctx context.Context, input json.RawMessage) (any, error) {
		var in T
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
		}
		return fn(ctx, in)
	})
}

// Declaration describes one tool.
type Declaration struct {
	Name        string
	Description string
	InputSchema Schema
	Executor    Executor
}

// IsServer reports whether the tool runs in-process.
func (d Declaration) IsServer() bool {
	return d.Executor != nil
}

// ManifestEntry is what the model sees of a tool.
type ManifestEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"input_schema"`
}

// Manifest projects the declaration onto its model-facing description.
func (d Declaration) Manifest() ManifestEntry {
	return ManifestEntry{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: d.InputSchema,
	}
}

// Result is the outcome of running a server tool. Output is the text handed
// back to the model; on failure it is a JSON object with an error field.
type Result struct {
	Output  string
	IsError bool
	Err     error
}

// Registry is an ordered, immutable set of declarations with unique names.
type Registry struct {
	decls []Declaration
	index map[string]int
}

// NewRegistry builds a registry, preserving declaration order.
func NewRegistry(decls ...Declaration) (*Registry, error) {
	r := &Registry{
		decls: make([]Declaration, 0, len(decls)),
		index: make(map[string]int, len(decls)),
	}
	for _, d := range decls {
		if d.Name == "" {
			return nil, errors.New("tool declaration without a name")
		}
		if _, exists := r.index[d.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
		}
		if d.InputSchema == nil {
			d.InputSchema = Schema{"type": "object", "properties": map[string]any{}}
		}
		r.index[d.Name] = len(r.decls)
		r.decls = append(r.decls, d)
	}
	return r, nil
}

// List returns the declarations in registration order.
func (r *Registry) List() []Declaration {
	out := make([]Declaration, len(r.decls))
	copy(out, r.decls)
	return out
}

// Manifest returns the model-facing projection of every tool.
func (r *Registry) Manifest() []ManifestEntry {
	out := make([]ManifestEntry, len(r.decls))
	for i, d := range r.decls {
		out[i] = d.Manifest()
	}
	return out
}

// Lookup finds a declaration by name.
func (r *Registry) Lookup(name string) (Declaration, bool) {
	i, ok := r.index[name]
	if !ok {
		return Declaration{}, false
	}
	return r.decls[i], true
}

// Execute runs the named server tool. Unknown tools and executor failures,
// panics included, come back as error results. Calling Execute on a client
// tool is a programming error and panics.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) Result {
	decl, ok := r.Lookup(name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTool, name)
		return errorResult(err)
	}
	if !decl.IsServer() {
		panic(fmt.Sprintf("tools: Execute called on client tool %q", name))
	}

	output, err := safeExecute(ctx, decl.Executor, input)
	if err != nil {
		return errorResult(err)
	}

	text, err := formatOutput(output)
	if err != nil {
		return errorResult(err)
	}
	return Result{Output: text}
}

func safeExecute(ctx context.Context, exec Executor, input json.RawMessage) (output any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool panicked: %v", p)
		}
	}()
	return exec.Execute(ctx, input)
}

func formatOutput(output any) (string, error) {
	switch v := output.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	case nil:
		return "null", nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return "", fmt.Errorf("encoding tool output: %w", err)
	}
	return string(data), nil
}

func errorResult(err error) Result {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	return Result{Output: string(payload), IsError: true, Err: err}
}
