package dependency

import (
	"fmt"
	"sort"
	"strings"
)

// NodeID is the unique identifier for a node inside a dependency graph.
// We purposely keep it as a string alias so that callers can freely choose
// an encoding scheme (here: the Actor name within its Playbook).
type NodeID string

// Node represents one Actor together with its dependency list.
//
// A node can depend on zero or more other nodes. Edges point from an Actor
// to each Actor it depends on; the graph must be acyclic, and CycleCheck
// reports any violation with the full offending cycle.
type Node struct {
	ID        NodeID
	DependsOn []NodeID
}

// Graph is a small helper to answer dependency queries. It is *not*
// thread-safe by itself; callers must synchronise if they write concurrently.
type Graph struct {
	nodes map[NodeID]*Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode adds (or replaces) a node in the graph.
func (g *Graph) AddNode(n Node) {
	if g.nodes == nil {
		g.nodes = make(map[NodeID]*Node)
	}
	// Copy to avoid external mutations
	copied := n
	copied.DependsOn = append([]NodeID(nil), n.DependsOn...)
	g.nodes[n.ID] = &copied
}

// AddEdge records that from depends on to. Both endpoints are created if
// they are not present yet.
func (g *Graph) AddEdge(from, to NodeID) {
	if g.nodes == nil {
		g.nodes = make(map[NodeID]*Node)
	}
	if _, ok := g.nodes[to]; !ok {
		g.nodes[to] = &Node{ID: to}
	}
	n, ok := g.nodes[from]
	if !ok {
		n = &Node{ID: from}
		g.nodes[from] = n
	}
	for _, dep := range n.DependsOn {
		if dep == to {
			return
		}
	}
	n.DependsOn = append(n.DependsOn, to)
}

// Get returns a pointer to the stored node or nil if it does not exist.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns all node IDs in lexical order.
func (g *Graph) Nodes() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Dependencies returns a slice of immediate dependency IDs for the given node.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	if n, ok := g.nodes[id]; ok {
		// Return a copy to avoid callers modifying internal slice.
		depsCopy := make([]NodeID, len(n.DependsOn))
		copy(depsCopy, n.DependsOn)
		return depsCopy
	}
	return nil
}

// Dependents returns all node IDs that have a direct dependency on the given
// node. This is an O(n) walk but playbook graphs are tiny, so fine.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var res []NodeID
	for _, n := range g.nodes {
		for _, dep := range n.DependsOn {
			if dep == id {
				res = append(res, n.ID)
				break
			}
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// CycleError reports a dependency cycle. Cycle holds the offending nodes in
// walk order, with the first node repeated at the end for readability.
type CycleError struct {
	Cycle []NodeID
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Cycle)+1)
	for _, id := range e.Cycle {
		parts = append(parts, string(id))
	}
	if len(e.Cycle) > 0 {
		parts = append(parts, string(e.Cycle[0]))
	}
	return fmt.Sprintf("dependency cycle: %s", strings.Join(parts, " -> "))
}

// walk colors for cycle detection.
const (
	colorWhite = iota // unvisited
	colorGray         // on the current walk path
	colorBlack        // fully explored
)

// CycleCheck walks the graph with visited/in-progress coloring and returns
// a CycleError naming every node on the first cycle found, or nil if the
// graph is acyclic.
func (g *Graph) CycleCheck() error {
	colors := make(map[NodeID]int, len(g.nodes))
	var path []NodeID

	var visit func(id NodeID) *CycleError
	visit = func(id NodeID) *CycleError {
		colors[id] = colorGray
		path = append(path, id)

		if n := g.nodes[id]; n != nil {
			for _, dep := range n.DependsOn {
				switch colors[dep] {
				case colorGray:
					// Found a back edge; slice out the cycle from the path.
					for i, p := range path {
						if p == dep {
							cycle := append([]NodeID(nil), path[i:]...)
							return &CycleError{Cycle: cycle}
						}
					}
				case colorWhite:
					if err := visit(dep); err != nil {
						return err
					}
				}
			}
		}

		path = path[:len(path)-1]
		colors[id] = colorBlack
		return nil
	}

	for _, id := range g.Nodes() {
		if colors[id] == colorWhite {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopologicalOrder returns the node IDs ordered dependency-first using
// Kahn's algorithm: every node appears after all of its dependencies. Ties
// are broken lexically so the order is deterministic across passes. Returns
// a CycleError if the graph contains a cycle.
func (g *Graph) TopologicalOrder() ([]NodeID, error) {
	// In-degree here counts unsatisfied dependencies.
	indegree := make(map[NodeID]int, len(g.nodes))
	for id, n := range g.nodes {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
		}
		indegree[id] += len(n.DependsOn)
	}

	var ready []NodeID
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	order := make([]NodeID, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := make([]NodeID, 0)
		for _, dependent := range g.Dependents(id) {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		}
	}

	if len(order) != len(g.nodes) {
		// Kahn left nodes behind, so a cycle exists; name it precisely.
		if err := g.CycleCheck(); err != nil {
			return nil, err
		}
		// Should be unreachable, but never return a partial order silently.
		return nil, &CycleError{}
	}
	return order, nil
}
