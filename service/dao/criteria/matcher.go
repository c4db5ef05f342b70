package criteria

import (
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/service/dao"
)

// FilterByStatus returns true when status matches the parameters' status
// filter, or when no filter is present.
func FilterByStatus(status task.Status, parameters []*dao.Parameter) bool {
	statuses := dao.Statuses(parameters)
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if status == s {
			return true
		}
	}
	return false
}
