// Package config loads and validates the linesight YAML configuration:
// HTTP listener, snapshot retention, analysis parameters, alert rules, and
// webhook targets. Watch reloads the file on change.
package config
