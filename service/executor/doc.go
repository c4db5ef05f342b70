// Package executor runs the work a claimed task stands for. Handlers are
// registered per task type; tasks of any other type use the default handler,
// which waits for the task's duration.
package executor
