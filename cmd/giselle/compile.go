package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/giselles-ai/giselle-sub007/internal/dag"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

type graphFile struct {
	Nodes       []giselle.Node       `json:"nodes"`
	Connections []giselle.Connection `json:"connections"`
}

func newCompileCommand() *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "Compile a node graph into a workflow and print it as JSON",
		ArgsUsage: "<graph.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "from",
				Usage: "Node ID the workflow starts from (every operation node when empty)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errors.New("missing graph file argument")
			}
			return compileFile(path, command.String("from"), os.Stdout)
		},
	}
}

// compileFile reads a {nodes, connections} document and writes the compiled
// workflow to w.
func compileFile(path, from string, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read graph: %w", err)
	}
	var g graphFile
	if err := json.Unmarshal(data, &g); err != nil {
		return fmt.Errorf("parse graph: %w", err)
	}

	wf, err := dag.Compile(from, g.Nodes, g.Connections)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(wf)
}
