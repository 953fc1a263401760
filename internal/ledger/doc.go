// Package ledger persists the control-plane records of the platform:
// topics, consumer groups, consumers, committed offsets, in-flight
// delivery acks, and dead-letter entries with their retry history.
//
// Rows are JSON values in the shared Pebble keyspace. Unique constraints
// (topic name per workspace, group name per topic) and listing relations
// are explicit index keys written in the same batch as the row, so a
// crash never leaves a row without its indexes.
package ledger
