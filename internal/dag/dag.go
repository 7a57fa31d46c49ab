package dag

import (
	"fmt"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// Graph indexes a node/connection list. Node order is the order the nodes
// were given in and is used for every tie-break.
type Graph struct {
	nodes       []giselle.Node
	byID        map[string]int
	children    map[string][]string
	parents     map[string][]string
	incoming    map[string][]giselle.Connection
	connections []giselle.Connection
}

// Build validates ids and connection endpoints and indexes the graph.
func Build(nodes []giselle.Node, connections []giselle.Connection) (*Graph, error) {
	g := &Graph{
		byID:     make(map[string]int, len(nodes)),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
		incoming: make(map[string][]giselle.Connection),
	}

	for _, n := range nodes {
		if _, exists := g.byID[n.ID]; exists {
			return nil, fmt.Errorf("duplicate node ID %s: %w", n.ID, giselle.ErrInvalidGraph)
		}
		g.byID[n.ID] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}

	for _, c := range connections {
		from, ok := g.Node(c.OutputNode.ID)
		if !ok {
			return nil, fmt.Errorf("connection %s references unknown node %s: %w", c.ID, c.OutputNode.ID, giselle.ErrInvalidGraph)
		}
		to, ok := g.Node(c.InputNode.ID)
		if !ok {
			return nil, fmt.Errorf("connection %s references unknown node %s: %w", c.ID, c.InputNode.ID, giselle.ErrInvalidGraph)
		}
		if !from.HasOutput(c.OutputID) {
			return nil, fmt.Errorf("connection %s: node %s has no output %s: %w", c.ID, from.ID, c.OutputID, giselle.ErrInvalidGraph)
		}
		if !to.HasInput(c.InputID) {
			return nil, fmt.Errorf("connection %s: node %s has no input %s: %w", c.ID, to.ID, c.InputID, giselle.ErrInvalidGraph)
		}

		g.connections = append(g.connections, c)
		g.incoming[to.ID] = append(g.incoming[to.ID], c)
		if !contains(g.children[from.ID], to.ID) {
			g.children[from.ID] = append(g.children[from.ID], to.ID)
			g.parents[to.ID] = append(g.parents[to.ID], from.ID)
		}
	}
	return g, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (g *Graph) Node(id string) (giselle.Node, bool) {
	i, ok := g.byID[id]
	if !ok {
		return giselle.Node{}, false
	}
	return g.nodes[i], true
}

// Position is the node's index in the original node list.
func (g *Graph) Position(id string) int { return g.byID[id] }

func (g *Graph) Nodes() []giselle.Node                   { return g.nodes }
func (g *Graph) Children(id string) []string             { return g.children[id] }
func (g *Graph) Parents(id string) []string              { return g.parents[id] }
func (g *Graph) Incoming(id string) []giselle.Connection { return g.incoming[id] }
func (g *Graph) Connections() []giselle.Connection       { return g.connections }

// Roots returns nodes without parents in original order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, n := range g.nodes {
		if len(g.parents[n.ID]) == 0 {
			roots = append(roots, n.ID)
		}
	}
	return roots
}

// reachable walks children breadth-first from start. follow decides whether
// a reached node is kept and expanded.
func (g *Graph) reachable(start string, follow func(giselle.Node) bool) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range g.children[id] {
			if seen[c] {
				continue
			}
			n, _ := g.Node(c)
			if !follow(n) {
				continue
			}
			seen[c] = true
			queue = append(queue, c)
		}
	}
	return seen
}
