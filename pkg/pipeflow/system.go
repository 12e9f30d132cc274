package pipeflow

import (
	"context"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pipeflow/pipeflow/pkg/logging"
)

// System is a named, ordered list of Pipelines run strictly sequentially.
// A terminal signal from any pipeline — StopPipeline, or a non-tolerated
// *Error/*ConfigError — aborts every pipeline still to come.
type System struct {
	Name        string
	Description string
	Pipelines   []*Pipeline
}

var systemRegistry = orderedmap.New[string, *System]()

// Systems returns every registered System, in registration order.
func Systems() []*System {
	out := make([]*System, 0, systemRegistry.Len())
	for pair := systemRegistry.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// GetSystem looks a system up by name.
func GetSystem(name string) (*System, error) {
	if s, ok := systemRegistry.Get(name); ok {
		return s, nil
	}
	names := make([]string, 0, systemRegistry.Len())
	for pair := systemRegistry.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return nil, &NotFoundError{Kind: "system", Key: name, Suggestion: closestName(name, names)}
}

// NewSystem validates and registers a System. Name/description invariants
// mirror NewPipeline's.
func NewSystem(name string, pipelines []*Pipeline, description string) *System {
	if name == "" {
		panic("pipeflow: system name cannot be empty")
	}
	if _, exists := systemRegistry.Get(name); exists {
		panic(fmt.Sprintf("pipeflow: system name %q is not unique", name))
	}
	if len(pipelines) == 0 {
		panic(fmt.Sprintf("pipeflow: system %q must contain at least one pipeline", name))
	}

	s := &System{
		Name:        name,
		Description: description,
		Pipelines:   append([]*Pipeline(nil), pipelines...),
	}
	systemRegistry.Set(name, s)
	return s
}

func (s *System) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "===== System: %s =====\n", s.Name)
	if s.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", s.Description)
	}
	names := make([]string, len(s.Pipelines))
	for i, p := range s.Pipelines {
		names[i] = p.Name
	}
	fmt.Fprintf(&b, "Pipelines (in run order): %s\n", strings.Join(names, " -> "))
	return b.String()
}

// Run executes every pipeline in order, stopping at the first one that
// returns a non-nil error. The returned error is exactly the failing
// pipeline's Run error (a *StopPipeline, *Error, or *ConfigError),
// unwrapped, so callers can errors.As it the same way they would a bare
// Pipeline.Run result.
func (s *System) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("starting system run", "system", s.Name, "pipelines", len(s.Pipelines))

	for _, p := range s.Pipelines {
		if err := p.Run(ctx); err != nil {
			log.Error("system aborted", "system", s.Name, "pipeline", p.Name, "error", err)
			return err
		}
	}

	log.Info("system run complete", "system", s.Name)
	return nil
}
