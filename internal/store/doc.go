// Package store holds the in-memory visit snapshots the analyzers read,
// keyed by production line. Ingest appends visits per line; a background
// loop evicts lines that have stopped reporting.
package store
