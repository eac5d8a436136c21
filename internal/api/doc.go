// Package api implements the REST endpoints that expose the analysis
// pipeline over HTTP: visit ingest, cycle-time tables, dwell ECDFs, flow-gap
// and expected-arrival analyses, hiding reports, and per-line diagnostics.
//
// Handlers validate parameters before any computation and answer 400 on the
// first bad one. All responses are JSON.
package api
