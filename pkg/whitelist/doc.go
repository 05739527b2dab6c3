// Package whitelist manages the pre-authorization records that gate account
// creation. An administrator whitelists an email with an intended role; the
// invitation dispatcher and the profile materializer then drive the entry
// through its lifecycle (invited, materialized, optionally revoked).
//
// Revoking an entry (Deactivate) blocks future materialization but never
// deletes history or undoes an account that already exists.
package whitelist
