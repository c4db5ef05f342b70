package clock

import "time"

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// Now returns NowFunc in UTC truncated to microseconds, the precision kept by
// the SQL stores, so that in-memory and persisted timestamps compare equal.
func Now() time.Time { return NowFunc().UTC().Truncate(time.Microsecond) }
