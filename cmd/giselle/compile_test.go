package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

func textNode(id string) giselle.Node {
	return giselle.Node{
		ID:   id,
		Name: id,
		Type: giselle.NodeTypeOperation,
		Content: &giselle.TextGenerationContent{
			LLM:    giselle.LanguageModelRef{Provider: "openai", ID: "gpt-4o"},
			Prompt: "hello",
		},
		Inputs:  []giselle.Input{{ID: "in-1"}},
		Outputs: []giselle.Output{{ID: "otp-text"}},
	}
}

func writeGraph(t *testing.T, g graphFile) string {
	t.Helper()
	data, err := json.Marshal(g)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestCompileFile(t *testing.T) {
	a, b := textNode("nd-a"), textNode("nd-b")
	path := writeGraph(t, graphFile{
		Nodes:       []giselle.Node{a, b},
		Connections: []giselle.Connection{giselle.Connect("cnnc-1", a, "otp-text", b, "in-1")},
	})

	var out bytes.Buffer
	require.NoError(t, compileFile(path, "nd-a", &out))

	var wf giselle.Workflow
	require.NoError(t, json.Unmarshal(out.Bytes(), &wf))
	require.Len(t, wf.Jobs, 2)
	assert.Equal(t, "nd-a", wf.Jobs[0].Operations[0].Node.ID)
	assert.Equal(t, "nd-b", wf.Jobs[1].Operations[0].Node.ID)
}

func TestCompileFile_Cycle(t *testing.T) {
	a, b := textNode("nd-a"), textNode("nd-b")
	path := writeGraph(t, graphFile{
		Nodes: []giselle.Node{a, b},
		Connections: []giselle.Connection{
			giselle.Connect("cnnc-1", a, "otp-text", b, "in-1"),
			giselle.Connect("cnnc-2", b, "otp-text", a, "in-1"),
		},
	})

	var out bytes.Buffer
	err := compileFile(path, "", &out)
	var cycle *giselle.GraphCycleError
	assert.True(t, errors.As(err, &cycle), "got %v", err)
	assert.Zero(t, out.Len())
}

func TestCompileFile_MissingFile(t *testing.T) {
	err := compileFile(filepath.Join(t.TempDir(), "nope.json"), "", &bytes.Buffer{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
