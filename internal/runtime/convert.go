package runtime

import (
	"fmt"

	"github.com/risor-io/risor/object"
)

// Risor values arrive as objects; these unwrap the shapes the host
// functions accept.

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

func toStringList(obj object.Object) ([]string, error) {
	list, ok := obj.(*object.List)
	if !ok {
		return nil, fmt.Errorf("expected list, got %s", obj.Type())
	}
	items := list.Value()
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, err := toString(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}
