// Package middleware holds the echo middleware of the HTTP server: request
// ids, request logging, panic recovery, body and time limits, and metrics.
package middleware
