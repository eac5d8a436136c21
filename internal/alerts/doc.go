// Package alerts evaluates threshold rules against per-line flow metrics
// and delivers webhook notifications when rules fire or resolve. Rules are
// plain "field op value" expressions from the configuration.
package alerts
