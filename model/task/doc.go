// Package task defines the task record scheduled by the engine together with
// its lifecycle states and the submission descriptor.
//
// A task moves QUEUED -> RUNNING -> COMPLETED|FAILED. The only backward edge is
// RUNNING -> QUEUED, applied by crash recovery when a process starts.
package task
