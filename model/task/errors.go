package task

import "errors"

// ErrValidation is returned for malformed submissions. It is always wrapped
// with the offending field so callers can report it while matching with errors.Is.
var ErrValidation = errors.New("task: validation error")
