package gate

import "errors"

// ErrStore wraps every counting-store failure surfaced by a gate.
var ErrStore = errors.New("counting store unavailable")

// Decision is the outcome of one admission check.
type Decision struct {
	Forward bool
	// Text is what to send when Forward is set; it may carry a count annotation.
	Text string
	// Count is the live count observed by this call (0 when the gate did not count).
	Count int64
}

// Setting is the stored form of a threshold configuration.
type Setting struct {
	Count         int   `json:"sending_threshold_number"`
	WindowSeconds int64 `json:"sending_threshold_time"`
}
