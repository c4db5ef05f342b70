package executor

import "errors"

var (
	ErrNilTask = errors.New("task was nil")
)
