package executor

import "errors"

// ErrFatal marks driver failures at the session or navigation level.
// Anything wrapping it aborts the run; every other per-action error is
// caught at the run loop, logged against that action, and skipped.
var ErrFatal = errors.New("executor: fatal driver failure")
