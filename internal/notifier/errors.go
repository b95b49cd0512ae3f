package notifier

import (
	"errors"

	"notifyrelay/internal/gate"
)

var (
	// ErrConfiguration reports settings that make a send impossible (e.g. a page
	// size smaller than the page-1 metadata). Never retried.
	ErrConfiguration = errors.New("notifier misconfigured")
	// ErrResolution reports a symbolic receiver that cannot be mapped to a chat id.
	ErrResolution = errors.New("receiver resolution failed")
	// ErrStore reports an unreachable counting store.
	ErrStore = gate.ErrStore
)
