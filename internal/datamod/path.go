package datamod

import (
	"strconv"
	"strings"
)

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

// clone deep-copies a decoded JSON document.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = clone(val)
		}
		return out
	default:
		return v
	}
}

// lookup walks segments from doc and returns the value found there.
func lookup(doc any, segments []string) (any, bool) {
	cur := doc
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// parentObject returns the object holding the last segment, plus that key.
func parentObject(doc any, segments []string) (map[string]any, string, bool) {
	if len(segments) == 0 {
		return nil, "", false
	}
	parent, ok := lookup(doc, segments[:len(segments)-1])
	if !ok {
		return nil, "", false
	}
	obj, ok := parent.(map[string]any)
	if !ok {
		return nil, "", false
	}
	return obj, segments[len(segments)-1], true
}
