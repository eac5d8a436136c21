// Package event defines the station-visit record model shared by all
// analyzers, the ordered stage chain that establishes upstream/downstream
// relationships, and tolerant parsing of raw ingest records.
package event
