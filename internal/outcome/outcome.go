// Package outcome classifies batch runs.
package outcome

type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// Derive classifies a finished batch: no failures is success, no successes
// is error, anything else partial. An empty batch is a success.
func Derive(succeeded, failed int) Status {
	switch {
	case failed == 0:
		return StatusSuccess
	case succeeded == 0:
		return StatusError
	default:
		return StatusPartial
	}
}

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusPartial || s == StatusError
}

// Aborted classifies a batch that stopped before every item ran. It is
// never a success: error when nothing went through, partial otherwise.
func Aborted(succeeded int) Status {
	if succeeded == 0 {
		return StatusError
	}
	return StatusPartial
}
