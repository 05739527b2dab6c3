// Package accounts owns the local account store and the materializer that
// turns a whitelisted provider identity into an account with its role
// profile.
//
// Materialization is idempotent and race-safe: concurrent attempts for the
// same identity are serialized by database uniqueness constraints, and every
// caller ends up observing the single winning account.
package accounts
