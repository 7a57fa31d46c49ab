package giselle

import "time"

type Workspace struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Node looks up a node by id.
func (w *Workspace) Node(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

type AppParameter struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// App exposes a workspace entry node as a runnable application.
type App struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspaceId"`
	EntryNodeID string         `json:"entryNodeId"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  []AppParameter `json:"parameters"`
}

type Secret struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Label       string    `json:"label"`
	Value       string    `json:"value"`
	CreatedAt   time.Time `json:"createdAt"`
}
