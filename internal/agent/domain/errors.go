package domain

import "errors"

// ErrTaskNotFound is returned by state stores when no snapshot exists for a
// task id. It is distinct from a task that exists but has not yet completed.
var ErrTaskNotFound = errors.New("task not found")
