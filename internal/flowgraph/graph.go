// Package flowgraph records the data- and control-dependency structure of
// one script execution. The graph is append-only while the run is live:
// nodes and edges are only ever added, never removed or rewritten, so the
// export is a faithful audit artifact even after a mid-run failure.
package flowgraph

import (
	"github.com/planguard/planguard/internal/model"
)

// NodeKind distinguishes assignment targets from external invocations.
type NodeKind string

const (
	NodeValue NodeKind = "value"
	NodeCall  NodeKind = "call"
)

// EdgeKind distinguishes data flow from control-flow influence.
type EdgeKind string

const (
	EdgeData    EdgeKind = "data"
	EdgeControl EdgeKind = "control"
)

// Node is one recorded node. Name is the assignment target for value
// nodes and the capability name for call nodes. Label is a snapshot taken
// at record time; later derivations never alter it.
type Node struct {
	ID    int         `json:"id"`
	Kind  NodeKind    `json:"kind"`
	Name  string      `json:"name"`
	Label model.Label `json:"label"`
}

// Edge is one recorded dependency. From produced data (or a control
// decision) that To depends on.
type Edge struct {
	Kind EdgeKind `json:"kind"`
	From int      `json:"from"`
	To   int      `json:"to"`
}

// Snapshot is the stable export format consumed by visualizers and the
// run store.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Graph accumulates nodes and edges for one run. A run executes on a
// single goroutine, so the graph is not synchronized; concurrent runs each
// own their own Graph.
type Graph struct {
	nodes []Node
	edges []Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{}
}

// RecordValue appends a ValueNode for an assignment target and data edges
// from each producing node. Returns the new node's ID.
func (g *Graph) RecordValue(name string, label model.Label, deps []int) int {
	id := len(g.nodes)
	g.nodes = append(g.nodes, Node{ID: id, Kind: NodeValue, Name: name, Label: label.Clone()})
	for _, d := range deps {
		g.edges = append(g.edges, Edge{Kind: EdgeData, From: d, To: id})
	}
	return id
}

// RecordCall appends a CallNode for a capability or assistant invocation
// and data edges from each argument's producing node.
func (g *Graph) RecordCall(name string, label model.Label, argDeps []int) int {
	id := len(g.nodes)
	g.nodes = append(g.nodes, Node{ID: id, Kind: NodeCall, Name: name, Label: label.Clone()})
	for _, d := range argDeps {
		g.edges = append(g.edges, Edge{Kind: EdgeData, From: d, To: id})
	}
	return id
}

// AddControlEdge records that the node `to` was produced under control
// flow decided by node `from` (a branch or loop condition).
func (g *Graph) AddControlEdge(from, to int) {
	g.edges = append(g.edges, Edge{Kind: EdgeControl, From: from, To: to})
}

// Len returns the number of recorded nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the recorded node with the given ID, or nil.
func (g *Graph) Node(id int) *Node {
	if id < 0 || id >= len(g.nodes) {
		return nil
	}
	n := g.nodes[id]
	return &n
}

// Export copies the graph into a Snapshot. The copy is detached: callers
// may hold it after the run completes or fails.
func (g *Graph) Export() Snapshot {
	s := Snapshot{
		Nodes: make([]Node, len(g.nodes)),
		Edges: make([]Edge, len(g.edges)),
	}
	copy(s.Nodes, g.nodes)
	copy(s.Edges, g.edges)
	return s
}

// ControlOrigins computes, for the given starting nodes, the union of
// origins carried by control-edge sources anywhere in their ancestry.
// Node labels are cumulative, so a control source's own label already
// covers its data ancestry; one hop per control edge suffices.
func (g *Graph) ControlOrigins(start []int) []model.Origin {
	ancestors := g.ancestorSet(start)

	seen := map[model.Origin]bool{}
	var out []model.Origin
	for _, e := range g.edges {
		if e.Kind != EdgeControl || !ancestors[e.To] {
			continue
		}
		src := g.Node(e.From)
		if src == nil {
			continue
		}
		for _, o := range src.Label.Origins {
			if !seen[o] {
				seen[o] = true
				out = append(out, o)
			}
		}
	}
	return out
}

// ancestorSet walks data and control edges backwards from the start set
// and returns every reachable node, including the start nodes themselves.
func (g *Graph) ancestorSet(start []int) map[int]bool {
	parents := map[int][]int{}
	for _, e := range g.edges {
		parents[e.To] = append(parents[e.To], e.From)
	}

	seen := map[int]bool{}
	queue := append([]int{}, start...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, parents[id]...)
	}
	return seen
}
