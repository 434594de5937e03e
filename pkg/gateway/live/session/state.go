package session

import "strings"

// fieldState accumulates extracted consultation fields. Dotted paths create
// nested maps ("vitals.pulse" lands under the "vitals" key). It is mutated
// only from the outbound pump's dispatch path, so no locking is needed.
type fieldState struct {
	root map[string]any
}

func newFieldState() *fieldState {
	return &fieldState{root: map[string]any{}}
}

// Set writes value at the dotted path, creating intermediate maps as needed.
// A non-map intermediate is overwritten: the latest extraction wins.
func (f *fieldState) Set(path string, value any) {
	parts := strings.Split(path, ".")
	node := f.root
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
}

// Flatten returns a dotted-path view of the whole state, the shape the
// eligibility engine consumes.
func (f *fieldState) Flatten() map[string]any {
	out := map[string]any{}
	flattenInto(out, "", f.root)
	return out
}

func flattenInto(out map[string]any, prefix string, node map[string]any) {
	for key, val := range node {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if child, ok := val.(map[string]any); ok {
			flattenInto(out, path, child)
			continue
		}
		out[path] = val
	}
}

// Len counts leaf fields currently captured.
func (f *fieldState) Len() int {
	return len(f.Flatten())
}
