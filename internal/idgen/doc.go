// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// Task ids are assigned by submitters; generated identifiers are used only for
// worker instances and claim ownership in logs and traces.
package idgen
