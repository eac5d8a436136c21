// Package ws implements the WebSocket hub that pushes the live per-line flow
// overview to dashboard clients on a fixed tick. The same tick drives alert
// rule evaluation.
package ws
