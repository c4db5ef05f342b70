package task

import (
	"fmt"
	"math"
	"time"
)

// MaxDurationMs is the largest duration that still fits time.Duration
const MaxDurationMs = int64(math.MaxInt64 / int64(time.Millisecond))

// Descriptor carries the submitter supplied fields of a task
type Descriptor struct {
	ID           string   `json:"id" yaml:"id"`
	Type         string   `json:"type" yaml:"type"`
	DurationMs   int64    `json:"duration_ms" yaml:"duration_ms"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Validate checks descriptor fields
func (d *Descriptor) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: descriptor is nil", ErrValidation)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: 'id' is required (string)", ErrValidation)
	}
	if d.Type == "" {
		return fmt.Errorf("%w: 'type' is required (string)", ErrValidation)
	}
	if d.DurationMs <= 0 {
		return fmt.Errorf("%w: 'duration_ms' must be a positive number", ErrValidation)
	}
	if d.DurationMs > MaxDurationMs {
		return fmt.Errorf("%w: 'duration_ms' must not exceed %d", ErrValidation, MaxDurationMs)
	}
	for i, dep := range d.Dependencies {
		if dep == "" {
			return fmt.Errorf("%w: 'dependencies[%d]' must be a non-empty task id", ErrValidation, i)
		}
	}
	return nil
}

// DescriptorFromMap builds a descriptor from a loosely typed payload (decoded
// JSON or YAML), rejecting values whose shape does not match.
func DescriptorFromMap(raw map[string]interface{}) (*Descriptor, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: payload is empty", ErrValidation)
	}
	ret := &Descriptor{}
	var ok bool
	if ret.ID, ok = raw["id"].(string); !ok || ret.ID == "" {
		return nil, fmt.Errorf("%w: 'id' is required (string)", ErrValidation)
	}
	if ret.Type, ok = raw["type"].(string); !ok || ret.Type == "" {
		return nil, fmt.Errorf("%w: 'type' is required (string)", ErrValidation)
	}
	duration, err := asDuration(raw["duration_ms"])
	if err != nil {
		return nil, err
	}
	ret.DurationMs = duration
	if deps, exists := raw["dependencies"]; exists && deps != nil {
		items, ok := deps.([]interface{})
		if !ok {
			if strs, isStrs := deps.([]string); isStrs {
				ret.Dependencies = append(ret.Dependencies, strs...)
				return ret, ret.Validate()
			}
			return nil, fmt.Errorf("%w: 'dependencies' must be an array of task IDs", ErrValidation)
		}
		ret.Dependencies = make([]string, 0, len(items))
		for i, item := range items {
			id, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: 'dependencies[%d]' must be a string task ID", ErrValidation, i)
			}
			ret.Dependencies = append(ret.Dependencies, id)
		}
	}
	return ret, ret.Validate()
}

func asDuration(value interface{}) (int64, error) {
	var f float64
	switch actual := value.(type) {
	case float64:
		f = actual
	case float32:
		f = float64(actual)
	case int:
		f = float64(actual)
	case int64:
		f = float64(actual)
	case int32:
		f = float64(actual)
	case uint64:
		f = float64(actual)
	default:
		return 0, fmt.Errorf("%w: 'duration_ms' must be a positive number", ErrValidation)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("%w: 'duration_ms' must be a positive number", ErrValidation)
	}
	if f > float64(MaxDurationMs) {
		return 0, fmt.Errorf("%w: 'duration_ms' must not exceed %d", ErrValidation, MaxDurationMs)
	}
	ms := int64(math.Ceil(f))
	return ms, nil
}
