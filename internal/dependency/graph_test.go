package dependency

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	g := New()
	if g == nil {
		t.Fatal("New() returned nil")
	}
	if g.nodes == nil {
		t.Fatal("nodes map not initialized")
	}
	if g.Len() != 0 {
		t.Fatalf("expected empty graph, got %d nodes", g.Len())
	}
}

func TestAddNode(t *testing.T) {
	tests := []struct {
		name     string
		nodes    []Node
		expected int
	}{
		{
			name: "add single node",
			nodes: []Node{
				{ID: "api"},
			},
			expected: 1,
		},
		{
			name: "add multiple nodes",
			nodes: []Node{
				{ID: "db"},
				{ID: "api", DependsOn: []NodeID{"db"}},
				{ID: "frontend", DependsOn: []NodeID{"api"}},
			},
			expected: 3,
		},
		{
			name: "replace existing node",
			nodes: []Node{
				{ID: "api"},
				{ID: "api", DependsOn: []NodeID{"db"}},
			},
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			for _, node := range tt.nodes {
				g.AddNode(node)
			}
			if g.Len() != tt.expected {
				t.Errorf("expected %d nodes, got %d", tt.expected, g.Len())
			}
			last := tt.nodes[len(tt.nodes)-1]
			if node := g.Get(last.ID); node == nil {
				t.Errorf("node %s not found", last.ID)
			} else if len(node.DependsOn) != len(last.DependsOn) {
				t.Errorf("node %s dependencies: expected %d, got %d",
					last.ID, len(last.DependsOn), len(node.DependsOn))
			}
		})
	}
}

func TestAddEdge(t *testing.T) {
	g := New()
	g.AddEdge("api", "db")
	g.AddEdge("api", "db") // duplicate, must not double the edge

	if g.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", g.Len())
	}
	deps := g.Dependencies("api")
	if len(deps) != 1 || deps[0] != "db" {
		t.Errorf("expected api -> [db], got %v", deps)
	}
	dependents := g.Dependents("db")
	if len(dependents) != 1 || dependents[0] != "api" {
		t.Errorf("expected db dependents [api], got %v", dependents)
	}
}

func TestCycleCheck(t *testing.T) {
	tests := []struct {
		name  string
		edges [][2]NodeID
		cycle []NodeID // nil means acyclic
	}{
		{
			name:  "empty graph",
			edges: nil,
			cycle: nil,
		},
		{
			name:  "linear chain",
			edges: [][2]NodeID{{"frontend", "api"}, {"api", "db"}},
			cycle: nil,
		},
		{
			name:  "diamond",
			edges: [][2]NodeID{{"d", "b"}, {"d", "c"}, {"b", "a"}, {"c", "a"}},
			cycle: nil,
		},
		{
			name:  "self loop",
			edges: [][2]NodeID{{"a", "a"}},
			cycle: []NodeID{"a"},
		},
		{
			name:  "two node cycle",
			edges: [][2]NodeID{{"a", "b"}, {"b", "a"}},
			cycle: []NodeID{"a", "b"},
		},
		{
			name:  "three node cycle behind a chain",
			edges: [][2]NodeID{{"entry", "a"}, {"a", "b"}, {"b", "c"}, {"c", "a"}},
			cycle: []NodeID{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			for _, e := range tt.edges {
				g.AddEdge(e[0], e[1])
			}

			err := g.CycleCheck()
			if tt.cycle == nil {
				if err != nil {
					t.Fatalf("expected acyclic graph, got %v", err)
				}
				return
			}

			var cycleErr *CycleError
			if !errors.As(err, &cycleErr) {
				t.Fatalf("expected CycleError, got %v", err)
			}
			// Every node of the injected cycle must be named.
			named := make(map[NodeID]bool, len(cycleErr.Cycle))
			for _, id := range cycleErr.Cycle {
				named[id] = true
			}
			for _, want := range tt.cycle {
				if !named[want] {
					t.Errorf("cycle %v does not name node %s", cycleErr.Cycle, want)
				}
			}
		})
	}
}

func TestTopologicalOrder(t *testing.T) {
	g := New()
	g.AddEdge("frontend", "api")
	g.AddEdge("api", "db")
	g.AddEdge("worker", "db")

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 nodes in order, got %d: %v", len(order), order)
	}

	pos := make(map[NodeID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, id := range g.Nodes() {
		for _, dep := range g.Dependencies(id) {
			if pos[dep] > pos[id] {
				t.Errorf("dependency %s ordered after dependent %s: %v", dep, id, order)
			}
		}
	}
}

func TestTopologicalOrderDeterministic(t *testing.T) {
	build := func() *Graph {
		g := New()
		g.AddNode(Node{ID: "c"})
		g.AddNode(Node{ID: "a"})
		g.AddNode(Node{ID: "b"})
		return g
	}

	first, err := build().TopologicalOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		next, err := build().TopologicalOrder()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for j := range first {
			if first[j] != next[j] {
				t.Fatalf("order not deterministic: %v vs %v", first, next)
			}
		}
	}
}

func TestTopologicalOrderCycle(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")

	_, err := g.TopologicalOrder()
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
}
