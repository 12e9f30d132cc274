package pipeflow

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pipeflow/pipeflow/pkg/logging"
)

// NodeFunc is the shape every node's callable must have. The positional
// argument slice has exactly len(Inputs) entries, each a deep copy of the
// corresponding binding so nodes never observe a sibling's mutation of a
// shared sub-structure. The returned slice is normalized by the executor
// before being bound to the declared Outputs; see normalizeArity in
// executor.go for the wrap-single-return rule.
type NodeFunc func(args []any) ([]any, error)

// Node is an immutable descriptor of one computational unit in a pipeline:
// a name, the input bindings it reads, the output bindings it produces,
// and the function that does the work.
//
// Every input/output name lives in one of three disjoint namespaces: a
// "params:<dotted.path>" global parameter, a catalog dataset name, or a
// free binding produced by some other node in the same pipeline.
//
// Nodes register themselves in a process-wide registry on construction;
// names must be unique within it for the life of the process.
type Node struct {
	Name        string
	Inputs      []string
	Outputs     []string
	Func        NodeFunc
	Description string
}

var nodeRegistry = orderedmap.New[string, *Node]()

// Nodes returns every registered Node, in registration order.
func Nodes() []*Node {
	out := make([]*Node, 0, nodeRegistry.Len())
	for pair := nodeRegistry.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// GetNode looks a node up by name, returning a *NotFoundError (with a
// best-effort "did you mean" suggestion) when it is unknown.
func GetNode(name string) (*Node, error) {
	if n, ok := nodeRegistry.Get(name); ok {
		return n, nil
	}
	names := make([]string, 0, nodeRegistry.Len())
	for pair := nodeRegistry.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return nil, &NotFoundError{Kind: "node", Key: name, Suggestion: closestName(name, names)}
}

// NewNode validates and registers a Node. It panics on a programmer error
// (empty or duplicate name, duplicate input/output name, nil func) because
// nodes are declared once at program initialization, the same place the
// original implementation raised ValueError/AssertionError for identical
// conditions.
func NewNode(name string, inputs, outputs []string, fn NodeFunc, description string) *Node {
	if name == "" {
		panic("pipeflow: node name cannot be empty")
	}
	if _, exists := nodeRegistry.Get(name); exists {
		panic(fmt.Sprintf("pipeflow: node name %q is not unique", name))
	}
	if dup := firstDuplicate(inputs); dup != "" {
		panic(fmt.Sprintf("pipeflow: node %q input list contains duplicate %q", name, dup))
	}
	if dup := firstDuplicate(outputs); dup != "" {
		panic(fmt.Sprintf("pipeflow: node %q output list contains duplicate %q", name, dup))
	}
	if fn == nil {
		panic(fmt.Sprintf("pipeflow: node %q function is not callable", name))
	}

	n := &Node{
		Name:        name,
		Inputs:      append([]string(nil), inputs...),
		Outputs:     append([]string(nil), outputs...),
		Func:        fn,
		Description: description,
	}
	nodeRegistry.Set(name, n)
	logging.FromContext(nil).Debug("registered node", "node", name, "inputs", inputs, "outputs", outputs)
	return n
}

// String renders the node's name, inputs, outputs and (if set)
// description, mirroring the original's __repr__.
func (n *Node) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Node: %s\n\tinputs: %v\n\toutputs: %v", n.Name, n.Inputs, n.Outputs)
	if n.Description != "" {
		fmt.Fprintf(&b, "\n\tdescription: %s", n.Description)
	}
	return b.String()
}

func firstDuplicate(names []string) string {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return n
		}
		seen[n] = struct{}{}
	}
	return ""
}

// resetRegistries clears every package-level registry. Test-only: lets
// each test file start from an empty process-wide registry instead of
// accumulating nodes/pipelines/systems across the whole test binary.
func resetRegistries() {
	nodeRegistry = orderedmap.New[string, *Node]()
	pipelineRegistry = orderedmap.New[string, *Pipeline]()
	systemRegistry = orderedmap.New[string, *System]()
}
