package giselle

// GenerationTemplate is everything a Generation needs to run one operation
// node: the node itself plus the upstream nodes whose outputs it consumes.
type GenerationTemplate struct {
	OperationNode Node         `json:"operationNode"`
	SourceNodes   []Node       `json:"sourceNodes"`
	Connections   []Connection `json:"connections"`
}

type Operation struct {
	ID                 string             `json:"id"`
	Node               Node               `json:"node"`
	GenerationTemplate GenerationTemplate `json:"generationTemplate"`
}

// Job is a layer of operations with no dependency among them.
type Job struct {
	ID         string      `json:"id"`
	Operations []Operation `json:"operations"`
}

// Workflow is the compiled, topologically ordered execution plan.
type Workflow struct {
	ID          string       `json:"id"`
	Jobs        []Job        `json:"jobs"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// JobIndex returns the index of the job that runs nodeID, or -1.
func (w *Workflow) JobIndex(nodeID string) int {
	for i, job := range w.Jobs {
		for _, op := range job.Operations {
			if op.Node.ID == nodeID {
				return i
			}
		}
	}
	return -1
}
