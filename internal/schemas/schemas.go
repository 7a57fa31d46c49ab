// Package schemas holds the JSON Schema of every persisted document together
// with the repairs that keep documents written by older versions loadable.
package schemas

import (
	"embed"
	"fmt"

	"github.com/giselles-ai/giselle-sub007/internal/datamod"
)

//go:embed json/*.json
var files embed.FS

var legacyActStatus = map[string]string{
	"inProgress": "in-progress",
	"running":    "in-progress",
	"completed":  "success",
	"error":      "failed",
}

var (
	Act = load("act",
		datamod.MapEnum("act-status-legacy", "status", legacyActStatus),
		datamod.MapEnum("sequence-status-legacy", "sequences.*.status", legacyActStatus),
		datamod.MapEnum("step-status-legacy", "sequences.*.steps.*.status", legacyActStatus),
		datamod.DefaultProperty("act-annotations-default", "", "annotations", []any{}),
		datamod.RenameProperty("step-generation-id", "sequences.*.steps.*", "generation_id", "generationId"),
		datamod.RenameProperty("step-node-id", "sequences.*.steps.*", "node_id", "nodeId"),
		datamod.PrefixID("act-id-prefix", "id", "act"),
	)

	Generation = load("generation",
		datamod.MapEnum("generation-status-legacy", "status", map[string]string{
			"created":   "queued",
			"requested": "queued",
			"canceled":  "cancelled",
		}),
		datamod.DefaultProperty("generation-origin-type", "context.origin", "type", "workspace"),
		datamod.MapEnum("generation-origin-run", "context.origin.type", map[string]string{"run": "act"}),
		datamod.PrefixID("generation-id-prefix", "id", "gnr"),
	)

	FlowTrigger = load("flow-trigger",
		datamod.MapEnum("trigger-provider-legacy", "configuration.provider", map[string]string{
			"githubWebhook": "github",
			"appEntry":      "app-entry",
		}),
		datamod.DefaultProperty("trigger-enable-default", "", "enable", false),
		datamod.PrefixID("trigger-id-prefix", "id", "fltg"),
	)

	App = load("app",
		datamod.DefaultProperty("app-parameters-default", "", "parameters", []any{}),
		datamod.PrefixID("app-id-prefix", "id", "app"),
	)

	Secret = load("secret",
		datamod.PrefixID("secret-id-prefix", "id", "scrt"),
	)

	Workspace = load("workspace",
		datamod.DefaultProperty("workspace-connections-default", "", "connections", []any{}),
	)

	Index = load("index")
)

func load(name string, repairs ...datamod.Repair) *datamod.Schema {
	src, err := files.ReadFile("json/" + name + ".json")
	if err != nil {
		panic(fmt.Sprintf("schemas: %s: %v", name, err))
	}
	return datamod.MustSchema(name, src, repairs...)
}
