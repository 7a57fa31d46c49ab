package dag

import "github.com/giselles-ai/giselle-sub007/internal/giselle"

// Slice returns the minimal subgraph needed to run from focusNodeID: the
// focus node, every operation node reachable from it, and each variable
// node those operations consume together with its connection. Variable
// nodes are leaves and are never expanded. The inputs are not modified, the
// result keeps the original order and has no duplicate nodes.
//
// An unknown focus node yields an empty slice.
func Slice(focusNodeID string, nodes []giselle.Node, connections []giselle.Connection) ([]giselle.Node, []giselle.Connection) {
	// tolerate duplicate ids here; the first occurrence wins
	byID := make(map[string]giselle.Node, len(nodes))
	var order []string
	for _, n := range nodes {
		if _, dup := byID[n.ID]; dup {
			continue
		}
		byID[n.ID] = n
		order = append(order, n.ID)
	}
	if _, ok := byID[focusNodeID]; !ok {
		return []giselle.Node{}, []giselle.Connection{}
	}

	children := map[string][]string{}
	for _, c := range connections {
		children[c.OutputNode.ID] = append(children[c.OutputNode.ID], c.InputNode.ID)
	}

	keep := map[string]bool{focusNodeID: true}
	queue := []string{focusNodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range children[id] {
			n, ok := byID[child]
			if !ok || keep[child] || !n.IsOperation() {
				continue
			}
			keep[child] = true
			queue = append(queue, child)
		}
	}

	var outConns []giselle.Connection
	leaves := map[string]bool{}
	for _, c := range connections {
		from, ok := byID[c.OutputNode.ID]
		if !ok || !keep[c.InputNode.ID] {
			continue
		}
		switch {
		case keep[from.ID]:
			outConns = append(outConns, c)
		case !from.IsOperation():
			leaves[from.ID] = true
			outConns = append(outConns, c)
		}
	}

	outNodes := []giselle.Node{}
	for _, id := range order {
		if keep[id] || leaves[id] {
			outNodes = append(outNodes, byID[id])
		}
	}
	if outConns == nil {
		outConns = []giselle.Connection{}
	}
	return outNodes, dedupeConnections(outConns)
}

func dedupeConnections(conns []giselle.Connection) []giselle.Connection {
	seen := make(map[string]bool, len(conns))
	out := conns[:0:0]
	for _, c := range conns {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
