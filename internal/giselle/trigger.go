package giselle

type TriggerProvider string

const (
	TriggerManual   TriggerProvider = "manual"
	TriggerGitHub   TriggerProvider = "github"
	TriggerAppEntry TriggerProvider = "app-entry"
	TriggerSchedule TriggerProvider = "schedule"
)

type TriggerParameter struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type GitHubTriggerConfig struct {
	Repository string `json:"repository,omitempty"`
	// Secret is the webhook secret, sealed by the Vault.
	Secret    string `json:"secret,omitempty"`
	Condition string `json:"condition,omitempty"`
}

type ScheduleConfig struct {
	Cron     string         `json:"cron"`
	Timezone string         `json:"timezone,omitempty"`
	Values   map[string]any `json:"values,omitempty"`
}

type TriggerConfiguration struct {
	Provider   TriggerProvider      `json:"provider"`
	EventID    string               `json:"eventId,omitempty"`
	Parameters []TriggerParameter   `json:"parameters,omitempty"`
	GitHub     *GitHubTriggerConfig `json:"github,omitempty"`
	Schedule   *ScheduleConfig      `json:"schedule,omitempty"`
}

// FlowTrigger is a configured external entry point bound to a trigger node.
type FlowTrigger struct {
	ID            string               `json:"id"`
	WorkspaceID   string               `json:"workspaceId"`
	NodeID        string               `json:"nodeId"`
	Enable        bool                 `json:"enable"`
	Configuration TriggerConfiguration `json:"configuration"`
}
