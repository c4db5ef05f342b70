// Package manifest loads batches of task descriptors from YAML or JSON documents.
//
// A manifest is either a list of tasks or a mapping with a top level "tasks"
// list. ${env.NAME} expressions are replaced with environment values before
// the document is decoded.
package manifest

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/taskgraph/internal/yml"
	"github.com/viant/taskgraph/model/task"
)

// Service loads manifests from any afs supported location
type Service struct {
	fs afs.Service
}

// Load downloads and parses the manifest at URL
func (s *Service) Load(ctx context.Context, URL string) ([]*task.Descriptor, error) {
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest %v: %w", URL, err)
	}
	ret, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest %v: %w", URL, err)
	}
	return ret, nil
}

// Parse decodes manifest content
func Parse(data []byte) ([]*task.Descriptor, error) {
	root, err := yml.Parse([]byte(expandEnv(string(data))))
	if err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	if root.IsMapping() {
		root = root.Lookup("tasks")
	}
	if !root.IsSequence() || len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: expected a non-empty list of tasks", task.ErrValidation)
	}
	ret := make([]*task.Descriptor, 0, len(root.Content))
	err = root.Items(func(index int, node *yml.Node) error {
		raw, ok := node.Interface().(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: tasks[%d] at line %d must be an object", task.ErrValidation, index, node.Line)
		}
		descriptor, err := task.DescriptorFromMap(raw)
		if err != nil {
			return fmt.Errorf("tasks[%d] at line %d: %w", index, node.Line, err)
		}
		ret = append(ret, descriptor)
		return nil
	})
	return ret, err
}

// New creates a manifest service
func New() *Service {
	return &Service{fs: afs.New()}
}
