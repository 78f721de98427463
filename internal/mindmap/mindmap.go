// Package mindmap holds the mindmap tree model and its FreeMind serializer.
package mindmap

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// maxDepth bounds the nesting accepted from untrusted payloads.
const maxDepth = 64

// ValidationError is returned when a mindmap payload is malformed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "mindmap validation: " + e.Reason
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Node is a single node within a mindmap tree. Text is always non-empty
// after parsing; Children is never nil.
type Node struct {
	Text     string
	Children []*Node
	Link     string
	Color    string
	Priority *int
}

// Mindmap is the top-level wrapper around the root node.
type Mindmap struct {
	Root *Node
}

var allowedNodeKeys = map[string]struct{}{
	"text":     {},
	"children": {},
	"link":     {},
	"color":    {},
	"priority": {},
}

// NodeFromMap parses an untrusted structured payload into a validated node
// tree. Unknown keys, empty text, non-list children, non-string link/color,
// and non-integer priority values are all rejected.
func NodeFromMap(data map[string]interface{}) (*Node, error) {
	return nodeFromMap(data, 0)
}

func nodeFromMap(data map[string]interface{}, depth int) (*Node, error) {
	if depth > maxDepth {
		return nil, validationErrorf("node nesting exceeds %d levels", maxDepth)
	}

	var unexpected []string
	for key := range data {
		if _, ok := allowedNodeKeys[key]; !ok {
			unexpected = append(unexpected, key)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return nil, validationErrorf("unexpected keys in node payload: %s", strings.Join(unexpected, ", "))
	}

	text, ok := data["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, validationErrorf("each node must include non-empty 'text'")
	}

	node := &Node{
		Text:     strings.TrimSpace(text),
		Children: []*Node{},
	}

	if raw, present := data["children"]; present && raw != nil {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, validationErrorf("'children' must be a list when provided")
		}
		for _, item := range list {
			childMap, ok := item.(map[string]interface{})
			if !ok {
				return nil, validationErrorf("node payload must be a mapping")
			}
			child, err := nodeFromMap(childMap, depth+1)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	}

	if raw, present := data["link"]; present && raw != nil {
		link, ok := raw.(string)
		if !ok {
			return nil, validationErrorf("'link' must be a string when provided")
		}
		node.Link = strings.TrimSpace(link)
	}

	if raw, present := data["color"]; present && raw != nil {
		color, ok := raw.(string)
		if !ok {
			return nil, validationErrorf("'color' must be a string when provided")
		}
		node.Color = strings.TrimSpace(color)
	}

	if raw, present := data["priority"]; present && raw != nil {
		priority, err := parsePriority(raw)
		if err != nil {
			return nil, err
		}
		node.Priority = &priority
	}

	return node, nil
}

func parsePriority(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		// encoding/json decodes all numbers to float64; only accept values
		// that are actually integral.
		if v == float64(int(v)) {
			return int(v), nil
		}
	case json.Number:
		if n, err := strconv.Atoi(v.String()); err == nil {
			return n, nil
		}
	case string:
		trimmed := strings.TrimSpace(v)
		if n, err := strconv.Atoi(trimmed); err == nil && n >= 0 {
			return n, nil
		}
	}
	return 0, validationErrorf("'priority' must be an integer or string-encoded integer")
}

// FromMap parses a full mindmap payload of the form {"root": {...}}.
func FromMap(data map[string]interface{}) (*Mindmap, error) {
	raw, present := data["root"]
	if !present {
		return nil, validationErrorf("mindmap payload must include a 'root' object")
	}
	rootMap, ok := raw.(map[string]interface{})
	if !ok {
		return nil, validationErrorf("'root' must be an object")
	}
	root, err := NodeFromMap(rootMap)
	if err != nil {
		return nil, err
	}
	return &Mindmap{Root: root}, nil
}

// FromJSON parses and validates a JSON mindmap payload.
func FromJSON(raw string) (*Mindmap, error) {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, validationErrorf("mindmap JSON could not be parsed")
	}
	return FromMap(parsed)
}

// Equal reports structural equality on text, children order, link, color
// and priority.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.Text != other.Text || n.Link != other.Link || n.Color != other.Color {
		return false
	}
	if (n.Priority == nil) != (other.Priority == nil) {
		return false
	}
	if n.Priority != nil && *n.Priority != *other.Priority {
		return false
	}
	if len(n.Children) != len(other.Children) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Equal(other.Children[i]) {
			return false
		}
	}
	return true
}
