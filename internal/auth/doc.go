// Package auth provides API key authentication middleware for the REST
// endpoints.
package auth
