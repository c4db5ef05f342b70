// Package resolver decides whether queued tasks have all their dependencies
// satisfied. It holds no state: callers pass a look-up bound to the current
// store contents so the decision is made against fresh data at claim time.
package resolver

import (
	"sort"

	"github.com/viant/taskgraph/model/task"
)

// Lookup returns the current status of a task id, ok is false when no record exists.
type Lookup func(id string) (task.Status, bool)

// MapLookup adapts a status map to Lookup
func MapLookup(statuses map[string]task.Status) Lookup {
	return func(id string) (task.Status, bool) {
		status, ok := statuses[id]
		return status, ok
	}
}

// DependenciesMet returns true when every dependency exists and is COMPLETED.
// An unknown dependency never resolves.
func DependenciesMet(aTask *task.Task, lookup Lookup) bool {
	for _, depID := range aTask.Dependencies {
		status, ok := lookup(depID)
		if !ok || status != task.StatusCompleted {
			return false
		}
	}
	return true
}

// Eligible returns true when the task is QUEUED and its dependencies are met
func Eligible(aTask *task.Task, lookup Lookup) bool {
	if aTask == nil || aTask.Status != task.StatusQueued {
		return false
	}
	return DependenciesMet(aTask, lookup)
}

// Ready returns eligible candidates ordered by creation time (oldest first),
// truncated to limit. A non-positive limit returns nil.
func Ready(candidates []*task.Task, lookup Lookup, limit int) []*task.Task {
	if limit <= 0 {
		return nil
	}
	var ready []*task.Task
	for _, candidate := range candidates {
		if Eligible(candidate, lookup) {
			ready = append(ready, candidate)
		}
	}
	SortByCreation(ready)
	if len(ready) > limit {
		ready = ready[:limit]
	}
	return ready
}

// SortByCreation orders tasks oldest first, id as tie-break
func SortByCreation(tasks []*task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Before(tasks[j])
	})
}

// SortNewestFirst orders tasks newest first, as listings are presented
func SortNewestFirst(tasks []*task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[j].Before(tasks[i])
	})
}
