// Package allocator runs the worker loop. On every tick it reads the global
// RUNNING count from the task store, claims up to the remaining capacity and
// hands each claimed task to a dispatcher. Claim is the only path from QUEUED
// to RUNNING.
package allocator
