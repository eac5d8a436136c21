// Package dwell builds per-unit transit samples between two arbitrary stages
// of the line: one (t_from, t_to) pair per unit, filtered by a time window,
// capped, and optionally censored when an error or repair event inside the
// interval makes the duration unrepresentative of normal flow.
package dwell
