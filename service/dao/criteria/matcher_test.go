package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/service/dao"
)

func TestFilterByStatus(t *testing.T) {
	testCases := []struct {
		name       string
		status     task.Status
		parameters []*dao.Parameter
		expect     bool
	}{
		{name: "no filter", status: task.StatusQueued, expect: true},
		{name: "single match", status: task.StatusRunning, parameters: []*dao.Parameter{dao.WithStatus(task.StatusRunning)}, expect: true},
		{name: "single mismatch", status: task.StatusQueued, parameters: []*dao.Parameter{dao.WithStatus(task.StatusRunning)}, expect: false},
		{name: "multi match", status: task.StatusFailed, parameters: []*dao.Parameter{dao.WithStatus(task.StatusCompleted, task.StatusFailed)}, expect: true},
		{name: "unrelated parameter", status: task.StatusFailed, parameters: []*dao.Parameter{dao.NewParameter("Type", "x")}, expect: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, FilterByStatus(tc.status, tc.parameters))
		})
	}
}
