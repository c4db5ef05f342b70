// Package yml adds navigation helpers on top of yaml.v3 nodes.
package yml

import (
	"strconv"

	"gopkg.in/yaml.v3"
)

type (
	Node yaml.Node
)

// Parse decodes data and returns the document content node, or nil for an empty document.
func Parse(data []byte) (*Node, error) {
	var document yaml.Node
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, err
	}
	if document.Kind != yaml.DocumentNode || len(document.Content) == 0 {
		return nil, nil
	}
	return (*Node)(document.Content[0]), nil
}

// Lookup returns the value node stored under name in a mapping node
func (n *Node) Lookup(name string) *Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == name {
			return (*Node)(n.Content[i+1])
		}
	}
	return nil
}

func (n *Node) IsSequence() bool {
	return n != nil && n.Kind == yaml.SequenceNode
}

func (n *Node) IsMapping() bool {
	return n != nil && n.Kind == yaml.MappingNode
}

// Items calls callback for every sequence element
func (n *Node) Items(callback func(index int, node *Node) error) error {
	for i := 0; i < len(n.Content); i++ {
		if err := callback(i, (*Node)(n.Content[i])); err != nil {
			return err
		}
	}
	return nil
}

// Interface converts the node into plain Go values; integers become int,
// floats float64 and mappings map[string]interface{}.
func (n *Node) Interface() interface{} {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!null":
			return nil
		case "!!bool":
			if value, err := strconv.ParseBool(n.Value); err == nil {
				return value
			}
		case "!!int":
			if value, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
				return int(value)
			}
		case "!!float":
			if value, err := strconv.ParseFloat(n.Value, 64); err == nil {
				return value
			}
		}
		return n.Value
	case yaml.MappingNode:
		aMap := make(map[string]interface{}, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			aMap[n.Content[i].Value] = (*Node)(n.Content[i+1]).Interface()
		}
		return aMap
	case yaml.SequenceNode:
		aSlice := make([]interface{}, 0, len(n.Content))
		for _, item := range n.Content {
			aSlice = append(aSlice, (*Node)(item).Interface())
		}
		return aSlice
	case yaml.AliasNode:
		if n.Alias != nil {
			return (*Node)(n.Alias).Interface()
		}
	}
	return nil
}
