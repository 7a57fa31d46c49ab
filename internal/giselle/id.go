package giselle

import (
	"encoding/hex"

	"github.com/google/uuid"
)

const (
	PrefixGeneration = "gnr"
	PrefixAct        = "act"
	PrefixSequence   = "sqn"
	PrefixStep       = "stp"
	PrefixTrigger    = "fltg"
	PrefixApp        = "app"
	PrefixSecret     = "scrt"
	PrefixWorkspace  = "wrks"
	PrefixWorkflow   = "wf"
	PrefixJob        = "job"
	PrefixOperation  = "op"
)

// GenerateID returns prefix-<32 hex chars>.
func GenerateID(prefix string) string {
	id := uuid.New()
	return prefix + "-" + hex.EncodeToString(id[:])
}
