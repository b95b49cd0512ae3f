// Package notifier implements the best-effort delivery pipeline.
//
// A message is split into pages (Paginate). Each page is offered to the
// primary delivery server through a Dispatcher, which retries immediately up
// to a fixed budget. A page the primary never accepts is handed to the
// Escalator, which re-sends it as plain text through the fallback bot channel.
// Pages are processed strictly in order and a failed page is escalated before
// the next page is dispatched.
//
// # Gates
//
// Service.SendAlert passes the text through an alert deduplicator and
// Service.SendGated through the threshold gate before paginating. Both gates
// live in package gate and keep their state in the counting store.
//
// # Errors
//
// Delivery failures never surface to callers: they are retried, escalated and
// logged. Only ErrConfiguration, ErrResolution and ErrStore are returned.
package notifier
