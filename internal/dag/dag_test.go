package dag

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

func opNode(id string) giselle.Node {
	return giselle.Node{
		ID:      id,
		Type:    giselle.NodeTypeOperation,
		Content: &giselle.TextGenerationContent{LLM: giselle.LanguageModelRef{Provider: "openai", ID: "gpt-4o"}},
		Inputs:  []giselle.Input{{ID: "in-1"}, {ID: "in-2"}},
		Outputs: []giselle.Output{{ID: "out"}},
	}
}

func triggerNode(id string) giselle.Node {
	return giselle.Node{
		ID:      id,
		Type:    giselle.NodeTypeOperation,
		Content: &giselle.TriggerContent{Provider: "manual"},
		Outputs: []giselle.Output{{ID: "out"}},
	}
}

func textNode(id string) giselle.Node {
	return giselle.Node{
		ID:      id,
		Type:    giselle.NodeTypeVariable,
		Content: &giselle.TextContent{Text: "context for " + id},
		Outputs: []giselle.Output{{ID: "out"}},
	}
}

func conn(from, to giselle.Node, input string) giselle.Connection {
	return giselle.Connect("cnnc-"+from.ID+"-"+to.ID, from, "out", to, input)
}

func jobNodeIDs(wf *giselle.Workflow) [][]string {
	var out [][]string
	for _, job := range wf.Jobs {
		var ids []string
		for _, op := range job.Operations {
			ids = append(ids, op.Node.ID)
		}
		out = append(out, ids)
	}
	return out
}

func TestCompile_LinearChain(t *testing.T) {
	n1, n2, n3 := triggerNode("nd-1"), opNode("nd-2"), opNode("nd-3")
	wf, err := Compile("nd-1",
		[]giselle.Node{n1, n2, n3},
		[]giselle.Connection{conn(n1, n2, "in-1"), conn(n2, n3, "in-1")},
	)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"nd-1"}, {"nd-2"}, {"nd-3"}}, jobNodeIDs(wf))
}

func TestCompile_DiamondTakesMaxLayer(t *testing.T) {
	a, b, c, d := triggerNode("a"), opNode("b"), opNode("c"), opNode("d")
	e := opNode("e")
	nodes := []giselle.Node{a, b, c, d, e}
	conns := []giselle.Connection{
		conn(a, b, "in-1"),
		conn(a, c, "in-1"),
		conn(b, d, "in-1"),
		conn(c, e, "in-1"),
		conn(e, d, "in-2"),
	}
	wf, err := Compile("a", nodes, conns)
	require.NoError(t, err)
	// d waits for e, which sits one layer below b
	assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"e"}, {"d"}}, jobNodeIDs(wf))
}

func TestCompile_TopologicalSoundness(t *testing.T) {
	nodes := []giselle.Node{opNode("x"), triggerNode("t"), opNode("y"), opNode("z"), opNode("w")}
	byID := map[string]giselle.Node{}
	for _, n := range nodes {
		byID[n.ID] = n
	}
	conns := []giselle.Connection{
		conn(byID["t"], byID["y"], "in-1"),
		conn(byID["y"], byID["x"], "in-1"),
		conn(byID["t"], byID["z"], "in-1"),
		conn(byID["z"], byID["x"], "in-2"),
		conn(byID["x"], byID["w"], "in-1"),
	}
	wf, err := Compile("", nodes, conns)
	require.NoError(t, err)

	for _, c := range conns {
		from, to := wf.JobIndex(c.OutputNode.ID), wf.JobIndex(c.InputNode.ID)
		require.NotEqual(t, -1, from)
		require.NotEqual(t, -1, to)
		assert.Less(t, from, to, "%s must run before %s", c.OutputNode.ID, c.InputNode.ID)
	}
}

func TestCompile_VariableNodesFoldedIntoSources(t *testing.T) {
	trg, gen, txt := triggerNode("nd-1"), opNode("nd-2"), textNode("nd-var")
	wf, err := Compile("nd-1",
		[]giselle.Node{trg, txt, gen},
		[]giselle.Connection{conn(trg, gen, "in-1"), conn(txt, gen, "in-2")},
	)
	require.NoError(t, err)
	require.Len(t, wf.Jobs, 2)

	for _, job := range wf.Jobs {
		for _, op := range job.Operations {
			assert.NotEqual(t, "nd-var", op.Node.ID, "variable nodes never execute")
		}
	}

	tmpl := wf.Jobs[1].Operations[0].GenerationTemplate
	var sources []string
	for _, n := range tmpl.SourceNodes {
		sources = append(sources, n.ID)
	}
	assert.Equal(t, []string{"nd-1", "nd-var"}, sources)
	assert.Len(t, tmpl.Connections, 2)

	var wfNodes []string
	for _, n := range wf.Nodes {
		wfNodes = append(wfNodes, n.ID)
	}
	assert.Equal(t, []string{"nd-1", "nd-var", "nd-2"}, wfNodes)
}

func TestCompile_Deterministic(t *testing.T) {
	a, b, c := triggerNode("a"), opNode("b"), opNode("c")
	nodes := []giselle.Node{a, b, c}
	conns := []giselle.Connection{conn(a, b, "in-1"), conn(a, c, "in-1")}

	first, err := Compile("a", nodes, conns)
	require.NoError(t, err)
	second, err := Compile("a", nodes, conns)
	require.NoError(t, err)

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}

func TestCompile_CycleDetected(t *testing.T) {
	a, b := opNode("a"), opNode("b")
	_, err := Compile("",
		[]giselle.Node{a, b},
		[]giselle.Connection{conn(a, b, "in-1"), conn(b, a, "in-1")},
	)
	var cycle *giselle.GraphCycleError
	require.True(t, errors.As(err, &cycle), "got %v", err)
	assert.ElementsMatch(t, []string{"a", "b"}, cycle.NodeIDs)
}

func TestCompile_CycleReachableFromStart(t *testing.T) {
	trg, a, b := triggerNode("t"), opNode("a"), opNode("b")
	_, err := Compile("t",
		[]giselle.Node{trg, a, b},
		[]giselle.Connection{conn(trg, a, "in-1"), conn(a, b, "in-1"), conn(b, a, "in-2")},
	)
	var cycle *giselle.GraphCycleError
	assert.True(t, errors.As(err, &cycle), "got %v", err)
}

func TestCompile_NoWorkflow(t *testing.T) {
	txt := textNode("lonely")
	_, err := Compile("lonely", []giselle.Node{txt}, nil)
	assert.True(t, errors.Is(err, giselle.ErrNoWorkflow))

	_, err = Compile("", []giselle.Node{txt}, nil)
	assert.True(t, errors.Is(err, giselle.ErrNoWorkflow))
}

func TestCompile_ZeroInputOperationIsFirstLayer(t *testing.T) {
	wf, err := Compile("solo", []giselle.Node{opNode("solo")}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"solo"}}, jobNodeIDs(wf))
}

func TestCompile_RejectsDanglingEndpoints(t *testing.T) {
	a, b := triggerNode("a"), opNode("b")

	bad := conn(a, b, "in-1")
	bad.InputID = "nope"
	_, err := Compile("a", []giselle.Node{a, b}, []giselle.Connection{bad})
	assert.True(t, errors.Is(err, giselle.ErrInvalidGraph), "got %v", err)

	_, err = Compile("a", []giselle.Node{a, b, a}, nil)
	assert.True(t, errors.Is(err, giselle.ErrInvalidGraph), "duplicate ids: %v", err)

	ghost := conn(a, opNode("ghost"), "in-1")
	_, err = Compile("a", []giselle.Node{a, b}, []giselle.Connection{ghost})
	assert.True(t, errors.Is(err, giselle.ErrInvalidGraph), "unknown node: %v", err)
}

func TestCompile_UnknownStartNode(t *testing.T) {
	_, err := Compile("missing", []giselle.Node{opNode("a")}, nil)
	assert.True(t, errors.Is(err, giselle.ErrNotFound))
}
