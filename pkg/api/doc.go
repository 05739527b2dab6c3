// Package api assembles the HTTP surface: routing, middleware chains, and
// the split between public, authenticated, and admin-gated routes.
package api
