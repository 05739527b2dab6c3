// Package middleware provides HTTP middleware for the rollcall API:
// request id tagging, request logging and metrics, panic recovery, session
// authentication against the identity provider, and the admin gate.
package middleware
