package datamod

import "strings"

// FixFunc returns a repaired copy of doc for one issue. It must not modify
// doc and reports false when it could not do anything.
type FixFunc func(doc any, issue Issue) (any, bool)

type Repair struct {
	Name    string
	Pattern Pattern
	Fix     FixFunc
}

// RenameProperty moves a legacy property to its new name when the new name
// is reported missing. parent is the path pattern of the owning object.
func RenameProperty(name, parent, from, to string) Repair {
	return Repair{
		Name:    name,
		Pattern: Pattern{Field: joinPath(parent, to), Code: CodeRequired, Property: to},
		Fix: func(doc any, issue Issue) (any, bool) {
			out := clone(doc)
			obj, _, ok := parentObject(out, issue.Segments())
			if !ok {
				return doc, false
			}
			v, ok := obj[from]
			if !ok {
				return doc, false
			}
			delete(obj, from)
			obj[to] = v
			return out, true
		},
	}
}

// DefaultProperty fills a missing property with a copy of value.
func DefaultProperty(name, parent, property string, value any) Repair {
	return Repair{
		Name:    name,
		Pattern: Pattern{Field: joinPath(parent, property), Code: CodeRequired, Property: property},
		Fix: func(doc any, issue Issue) (any, bool) {
			out := clone(doc)
			obj, key, ok := parentObject(out, issue.Segments())
			if !ok {
				return doc, false
			}
			obj[key] = clone(value)
			return out, true
		},
	}
}

// MapEnum replaces legacy enum values with their current spelling.
func MapEnum(name, field string, mapping map[string]string) Repair {
	return Repair{
		Name:    name,
		Pattern: Pattern{Field: field, Code: CodeEnum},
		Fix: func(doc any, issue Issue) (any, bool) {
			out := clone(doc)
			obj, key, ok := parentObject(out, issue.Segments())
			if !ok {
				return doc, false
			}
			old, ok := obj[key].(string)
			if !ok {
				return doc, false
			}
			replacement, ok := mapping[old]
			if !ok {
				return doc, false
			}
			obj[key] = replacement
			return out, true
		},
	}
}

// PrefixID adds "prefix-" to an id that fails its pattern because the
// prefix is missing.
func PrefixID(name, field, prefix string) Repair {
	return Repair{
		Name:    name,
		Pattern: Pattern{Field: field, Code: CodePattern},
		Fix: func(doc any, issue Issue) (any, bool) {
			out := clone(doc)
			obj, key, ok := parentObject(out, issue.Segments())
			if !ok {
				return doc, false
			}
			id, ok := obj[key].(string)
			if !ok || id == "" || strings.HasPrefix(id, prefix+"-") {
				return doc, false
			}
			obj[key] = prefix + "-" + id
			return out, true
		},
	}
}

// DropProperty removes a property the schema no longer allows.
func DropProperty(name, parent, property string) Repair {
	return Repair{
		Name:    name,
		Pattern: Pattern{Field: joinPath(parent, property), Code: CodeAdditionalProperty, Property: property},
		Fix: func(doc any, issue Issue) (any, bool) {
			out := clone(doc)
			obj, key, ok := parentObject(out, issue.Segments())
			if !ok {
				return doc, false
			}
			if _, ok := obj[key]; !ok {
				return doc, false
			}
			delete(obj, key)
			return out, true
		},
	}
}
