// Package gate holds the two flood-control policies applied before a message
// reaches the paginator:
//
//   - Threshold: a configured template is forwarded only once count_limit
//     sends for the same receiver land inside the time window.
//   - AlertDedup: an alert text is forwarded at most once per alert delay;
//     repeats inside the delay are counted and reported with the next forward.
//
// Both keep all state in a storage.Store. Every store mutation is a single
// backend operation; two callers racing on the same key may both forward or
// both suppress.
package gate
