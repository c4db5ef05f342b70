package dao

import "github.com/viant/taskgraph/model/task"

// StatusParameter is the parameter name used to filter listings by status
const StatusParameter = "Status"

type Parameter struct {
	Name  string
	Value interface{}
}

func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// WithStatus returns a status filter parameter
func WithStatus(statuses ...task.Status) *Parameter {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return NewParameter(StatusParameter, values...)
}

// Statuses extracts requested statuses from parameters, nil means no filter.
func Statuses(parameters []*Parameter) []task.Status {
	var ret []task.Status
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != StatusParameter {
			continue
		}
		switch actual := parameter.Value.(type) {
		case string:
			ret = append(ret, task.Status(actual))
		case []string:
			for _, s := range actual {
				ret = append(ret, task.Status(s))
			}
		}
	}
	return ret
}
