// Package storage provides the counting store shared by the delivery gates.
//
// The store is a small key/value API with per-key expiry, modelled on the
// Redis commands the gates need (INCR, SET EX, GET, prefix count, prefix delete).
// It holds:
//   - Threshold settings and their live counter entries
//   - Alert dedup counters and "already notified" markers
//   - Cached group-name -> chat-id resolutions
package storage
