package dag

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// Compile turns a graph into a Workflow. With a start node the workflow
// covers the start node (when it is an operation) and every operation node
// reachable from it; with an empty startNodeID it covers every operation
// node. Variable nodes never get a job of their own: they are folded into
// the source nodes of the operations that consume them.
func Compile(startNodeID string, nodes []giselle.Node, connections []giselle.Connection) (*giselle.Workflow, error) {
	g, err := Build(nodes, connections)
	if err != nil {
		return nil, err
	}

	scope, err := g.scope(startNodeID)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		return nil, giselle.ErrNoWorkflow
	}

	layers, err := g.layers(scope)
	if err != nil {
		return nil, err
	}

	wf := &giselle.Workflow{ID: workflowID(startNodeID, scope)}
	for i, layer := range layers {
		job := giselle.Job{ID: derivedID(giselle.PrefixJob, fmt.Sprintf("%s/%d", wf.ID, i))}
		for _, id := range layer {
			node, _ := g.Node(id)
			job.Operations = append(job.Operations, giselle.Operation{
				ID:                 derivedID(giselle.PrefixOperation, wf.ID+"/"+id),
				Node:               node,
				GenerationTemplate: g.template(node),
			})
		}
		wf.Jobs = append(wf.Jobs, job)
	}
	wf.Nodes, wf.Connections = g.closure(scope)
	return wf, nil
}

// scope returns the in-scope operation node ids in original order.
func (g *Graph) scope(startNodeID string) ([]string, error) {
	include := map[string]bool{}
	if startNodeID == "" {
		for _, n := range g.nodes {
			if n.IsOperation() {
				include[n.ID] = true
			}
		}
	} else {
		start, ok := g.Node(startNodeID)
		if !ok {
			return nil, giselle.NotFound("node", startNodeID)
		}
		for id := range g.reachable(start.ID, giselle.Node.IsOperation) {
			n, _ := g.Node(id)
			if n.IsOperation() {
				include[id] = true
			}
		}
	}

	var ids []string
	for _, n := range g.nodes {
		if include[n.ID] {
			ids = append(ids, n.ID)
		}
	}
	return ids, nil
}

// layers groups scope into jobs. A node's layer is one more than the
// highest layer among its in-scope operation parents.
func (g *Graph) layers(scope []string) ([][]string, error) {
	inScope := make(map[string]bool, len(scope))
	for _, id := range scope {
		inScope[id] = true
	}

	inDegree := make(map[string]int, len(scope))
	for _, id := range scope {
		for _, p := range g.parents[id] {
			if inScope[p] {
				inDegree[id]++
			}
		}
	}

	layer := make(map[string]int, len(scope))
	var queue []string
	for _, id := range scope {
		if inDegree[id] == 0 {
			layer[id] = 1
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, c := range g.children[id] {
			if !inScope[c] {
				continue
			}
			layer[c] = max(layer[c], layer[id]+1)
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if processed != len(scope) {
		var stuck []string
		for _, id := range scope {
			if inDegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, &giselle.GraphCycleError{NodeIDs: stuck}
	}

	depth := 0
	for _, l := range layer {
		depth = max(depth, l)
	}
	out := make([][]string, depth)
	// scope is in original order, so each layer stays in original order.
	for _, id := range scope {
		out[layer[id]-1] = append(out[layer[id]-1], id)
	}
	return out, nil
}

// template collects the direct upstream nodes of an operation node.
func (g *Graph) template(node giselle.Node) giselle.GenerationTemplate {
	t := giselle.GenerationTemplate{
		OperationNode: node,
		SourceNodes:   []giselle.Node{},
		Connections:   []giselle.Connection{},
	}
	parents := append([]string(nil), g.parents[node.ID]...)
	sort.SliceStable(parents, func(i, j int) bool { return g.Position(parents[i]) < g.Position(parents[j]) })
	for _, p := range parents {
		n, _ := g.Node(p)
		t.SourceNodes = append(t.SourceNodes, n)
	}
	t.Connections = append(t.Connections, g.incoming[node.ID]...)
	return t
}

// closure returns the scope plus every variable node feeding it, and the
// connections among them, all in original order.
func (g *Graph) closure(scope []string) ([]giselle.Node, []giselle.Connection) {
	keep := make(map[string]bool, len(scope))
	for _, id := range scope {
		keep[id] = true
		for _, p := range g.parents[id] {
			if n, _ := g.Node(p); !n.IsOperation() {
				keep[p] = true
			}
		}
	}

	nodes := []giselle.Node{}
	for _, n := range g.nodes {
		if keep[n.ID] {
			nodes = append(nodes, n)
		}
	}
	conns := []giselle.Connection{}
	for _, c := range g.connections {
		if keep[c.OutputNode.ID] && keep[c.InputNode.ID] {
			conns = append(conns, c)
		}
	}
	return nodes, conns
}

func workflowID(start string, scope []string) string {
	return derivedID(giselle.PrefixWorkflow, start+"|"+strings.Join(scope, ","))
}

// derivedID hashes seed into an id shaped like giselle.GenerateID output, so
// compiling the same graph twice yields identical ids.
func derivedID(prefix, seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return prefix + "-" + hex.EncodeToString(sum[:16])
}
