package datamod

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"
)

// MaxPasses bounds the repair loop even when every pass makes progress.
const MaxPasses = 10

// Schema is a compiled JSON Schema plus the repairs that can bring drifted
// documents back into shape.
type Schema struct {
	Name    string
	schema  *gojsonschema.Schema
	repairs []Repair
}

// NewSchema compiles a JSON Schema document.
func NewSchema(name string, source []byte, repairs ...Repair) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(source))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{Name: name, schema: compiled, repairs: repairs}, nil
}

// MustSchema is NewSchema for package-level schema tables.
func MustSchema(name string, source []byte, repairs ...Repair) *Schema {
	s, err := NewSchema(name, source, repairs...)
	if err != nil {
		panic(err)
	}
	return s
}

// Repairs returns the registered repairs in evaluation order.
func (s *Schema) Repairs() []Repair {
	out := make([]Repair, len(s.repairs))
	copy(out, s.repairs)
	return out
}

// Issues validates v (a decoded document or any JSON-marshalable value).
func (s *Schema) Issues(v any) ([]Issue, error) {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(v))
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", s.Name, err)
	}
	if result.Valid() {
		return nil, nil
	}
	issues := make([]Issue, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		issues = append(issues, issueFromResult(e))
	}
	return issues, nil
}

// Validate returns a *ValidationError when v does not match the schema.
func (s *Schema) Validate(v any) error {
	issues, err := s.Issues(v)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return &ValidationError{Schema: s.Name, Issues: issues}
	}
	return nil
}

// Report describes what the repair loop did.
type Report struct {
	Passes  int
	Applied []string
}

// Repair runs the fixed-point loop on a decoded document. When the loop
// cannot reach a valid document it returns the validation error of the
// document as it was handed in.
func (s *Schema) Repair(doc any) (any, Report, error) {
	var report Report

	issues, err := s.Issues(doc)
	if err != nil {
		return nil, report, err
	}
	if len(issues) == 0 {
		return doc, report, nil
	}
	original := &ValidationError{Schema: s.Name, Issues: issues}

	current := doc
	prevKey := issueSetKey(issues)
	for report.Passes < MaxPasses {
		next, applied := s.applyRepairs(current, issues)
		if len(applied) == 0 {
			return nil, report, original
		}
		report.Passes++
		report.Applied = append(report.Applied, applied...)

		issues, err = s.Issues(next)
		if err != nil {
			return nil, report, err
		}
		if len(issues) == 0 {
			slog.Debug("datamod: document repaired", "schema", s.Name, "passes", report.Passes, "repairs", report.Applied)
			return next, report, nil
		}
		key := issueSetKey(issues)
		if key == prevKey {
			return nil, report, original
		}
		prevKey = key
		current = next
	}
	return nil, report, original
}

func (s *Schema) applyRepairs(doc any, issues []Issue) (any, []string) {
	var applied []string
	for _, issue := range issues {
		for _, r := range s.repairs {
			if !r.Pattern.Matches(issue) {
				continue
			}
			next, ok := r.Fix(doc, issue)
			if ok {
				doc = next
				applied = append(applied, r.Name)
			}
		}
	}
	return doc, applied
}

// ParseAndRepair decodes raw into out, repairing it first if it does not
// validate.
func (s *Schema) ParseAndRepair(raw []byte, out any) (Report, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Report{}, fmt.Errorf("decode %s: %w", s.Name, err)
	}
	repaired, report, err := s.Repair(doc)
	if err != nil {
		return report, err
	}
	if report.Passes == 0 {
		return report, json.Unmarshal(raw, out)
	}
	fixed, err := json.Marshal(repaired)
	if err != nil {
		return report, fmt.Errorf("encode repaired %s: %w", s.Name, err)
	}
	return report, json.Unmarshal(fixed, out)
}
