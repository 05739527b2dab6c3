// Package invites dispatches identity provider invitations for whitelist
// entries and records the outcome on the entry.
package invites
