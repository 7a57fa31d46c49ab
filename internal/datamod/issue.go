package datamod

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const rootContext = "(root)"

// Error codes reported by gojsonschema that the repair helpers match on.
const (
	CodeRequired           = "required"
	CodeEnum               = "enum"
	CodeInvalidType        = "invalid_type"
	CodePattern            = "pattern"
	CodeAdditionalProperty = "additional_property_not_allowed"
)

// Issue is one schema violation in a form repairs can match on.
type Issue struct {
	// Field is the dotted path of the offending value. For required and
	// additional_property_not_allowed it includes the property itself.
	Field       string `json:"field"`
	Code        string `json:"code"`
	Property    string `json:"property,omitempty"`
	Description string `json:"description"`
	Value       any    `json:"value,omitempty"`
}

func (i Issue) String() string {
	field := i.Field
	if field == "" {
		field = "(root)"
	}
	return fmt.Sprintf("%s: %s", field, i.Description)
}

// Segments splits Field on dots. The root path has no segments.
func (i Issue) Segments() []string {
	return splitPath(i.Field)
}

func issueFromResult(e gojsonschema.ResultError) Issue {
	path := strings.TrimPrefix(e.Context().String(), rootContext)
	path = strings.TrimPrefix(path, ".")

	issue := Issue{
		Field:       path,
		Code:        e.Type(),
		Description: e.Description(),
		Value:       e.Value(),
	}
	if p, ok := e.Details()["property"].(string); ok {
		issue.Property = p
		switch issue.Code {
		case CodeRequired, CodeAdditionalProperty:
			issue.Field = joinPath(path, p)
		}
	}
	return issue
}

// issueSetKey renders issues as a stable string so two passes can be compared.
func issueSetKey(issues []Issue) string {
	keys := make([]string, len(issues))
	for i, is := range issues {
		keys[i] = is.Field + "|" + is.Code + "|" + is.Property + "|" + is.Description
	}
	sort.Strings(keys)
	return strings.Join(keys, "\n")
}

// Pattern is the discriminator a repair matches: a field path pattern where
// "*" stands for exactly one segment, an error code and an optional property.
type Pattern struct {
	Field    string
	Code     string
	Property string
}

func (p Pattern) Matches(issue Issue) bool {
	if p.Code != "" && p.Code != issue.Code {
		return false
	}
	if p.Property != "" && p.Property != issue.Property {
		return false
	}
	want, got := splitPath(p.Field), issue.Segments()
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != "*" && want[i] != got[i] {
			return false
		}
	}
	return true
}

func (p Pattern) String() string {
	return fmt.Sprintf("%s[%s:%s]", p.Field, p.Code, p.Property)
}

// ValidationError is a schema mismatch that repairs could not resolve.
type ValidationError struct {
	Schema string
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("%s does not match schema: %s", e.Schema, strings.Join(parts, "; "))
}
