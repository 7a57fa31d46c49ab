package repository

// Logical storage keys. They are not filesystem paths; every driver maps
// them on its own.

func ActPath(actID string) string { return "acts/" + actID + "/act.json" }

func GenerationPath(generationID string) string {
	return "generations/" + generationID + "/generation.json"
}

func GenerationChunksPath(generationID string) string {
	return "generations/" + generationID + "/ui-message-chunks.jsonl"
}

func GenerationImagePath(generationID, filename string) string {
	return "generations/" + generationID + "/images/" + filename
}

func GenerationsByActPath(actID string) string { return "generations/byAct/" + actID + ".json" }

func TriggerPath(triggerID string) string { return "flow-triggers/" + triggerID + ".json" }

func AppPath(appID string) string { return "apps/" + appID + ".json" }

func SecretPath(secretID string) string { return "secrets/" + secretID + "/secret.json" }

func WorkspacePath(workspaceID string) string { return "workspaces/" + workspaceID + "/workspace.json" }

func WorkspaceActsPath(workspaceID string) string { return "workspaces/" + workspaceID + "/acts.json" }

func WorkspaceSecretsPath(workspaceID string) string {
	return "workspaces/" + workspaceID + "/secrets.json"
}

func WorkspaceTriggersPath(workspaceID string) string {
	return "workspaces/" + workspaceID + "/flow-triggers.json"
}

func WorkspaceAppsPath(workspaceID string) string { return "workspaces/" + workspaceID + "/apps.json" }

// AllTriggersPath indexes every trigger so the scheduler can restore
// schedules at startup without a scan.
const AllTriggersPath = "indexes/flow-triggers.json"
