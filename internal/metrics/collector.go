// Package metrics counts delivery attempts, page results and gate decisions.
//
// The CLI is short-lived, so metrics are pushed to a Prometheus Pushgateway
// on exit instead of being scraped.
package metrics

import "context"

// Channel labels.
const (
	ChannelPrimary  = "primary"
	ChannelFallback = "fallback"
)

// Attempt results.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Page outcomes.
const (
	PageDelivered = "delivered"
	PageEscalated = "escalated"
	PageDryRun    = "dry_run"
)

// Gate names and decisions.
const (
	GateThreshold = "threshold"
	GateAlert     = "alert"

	DecisionForward  = "forward"
	DecisionSuppress = "suppress"
)

type Collector interface {
	// RecordAttempt counts one send attempt on a channel.
	RecordAttempt(channel, result string)
	// RecordPage counts one finished page.
	RecordPage(outcome string)
	RecordGate(gate, decision string)
	// Push sends collected values to the Pushgateway. Failures are logged, not returned.
	Push(ctx context.Context) error
}
